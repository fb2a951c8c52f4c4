package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"stockwatch/internal/app"
	"stockwatch/internal/config"
	"stockwatch/internal/inventory"
	"stockwatch/internal/notifier"
)

func (c *cli) addCommands(root *cobra.Command) {
	var (
		qty      int
		price    float64
		category string
	)
	addCmd := &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Add a new product",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.mutate(func(ctrl *app.Controller) error {
				return ctrl.AddProduct(args[0], args[1], qty, price, category)
			}, "added %s", args[0])
		},
	}
	addCmd.Flags().IntVarP(&qty, "qty", "q", 0, "initial quantity")
	addCmd.Flags().Float64VarP(&price, "price", "p", 0, "unit price")
	addCmd.Flags().StringVar(&category, "category", "", "category")

	sellCmd := &cobra.Command{
		Use:   "sell <id> <qty>",
		Short: "Record a sale",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("qty: %w", err)
			}
			return c.mutate(func(ctrl *app.Controller) error {
				return ctrl.SellProduct(args[0], n)
			}, "sold %d of %s", n, args[0])
		},
	}

	adjustCmd := &cobra.Command{
		Use:     "adjust <id> <delta>",
		Short:   "Change stock by a signed delta",
		Example: "  stockwatch adjust P001 25\n  stockwatch adjust P001 -- -3",
		Args:    cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			d, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("delta: %w", err)
			}
			return c.mutate(func(ctrl *app.Controller) error {
				return ctrl.UpdateQuantity(args[0], d)
			}, "adjusted %s by %+d", args[0], d)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return c.mutate(func(ctrl *app.Controller) error {
				return ctrl.DeleteProduct(args[0])
			}, "deleted %s", args[0])
		},
	}

	root.AddCommand(addCmd, sellCmd, adjustCmd, deleteCmd,
		c.statusCmd(), c.searchCmd(), c.activityCmd(), c.exportCmd(),
		c.reportCmd(), c.suggestCmd(), c.alertCmd(), c.checkCmd())
}

func (c *cli) mutate(fn func(*app.Controller) error, format string, args ...any) error {
	return c.withController(func(ctrl *app.Controller) error {
		if err := fn(ctrl); err != nil {
			// A failed autosave leaves the change applied in memory; the
			// final persist on shutdown gets another chance at it.
			if inventory.IsPersistence(err) {
				fmt.Fprintln(c.stderr, "warning:", err)
			} else {
				return err
			}
		}
		fmt.Fprintf(c.stdout, format+"\n", args...)
		return nil
	})
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stock levels, configured channels and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.withController(func(ctrl *app.Controller) error {
				snap, err := ctrl.Snapshot()
				if err != nil {
					return err
				}
				products, err := ctrl.Products()
				if err != nil {
					return err
				}
				recent, err := ctrl.RecentActivities(5)
				if err != nil {
					return err
				}

				fmt.Fprintf(c.stdout, "products: %d  low: %d  out: %d  value: %.2f  (threshold %d)\n",
					snap.TotalProducts, snap.LowStock, snap.OutOfStock, snap.TotalValue, snap.Threshold)
				chans := ctrl.Channels()
				if len(chans) == 0 {
					fmt.Fprintln(c.stdout, "channels: none")
				} else {
					fmt.Fprintln(c.stdout, "channels:", strings.Join(chans, ", "))
				}
				if len(products) > 0 {
					fmt.Fprintln(c.stdout)
					c.printProducts(products, snap.Threshold)
				}
				if len(recent) > 0 {
					fmt.Fprintln(c.stdout)
					c.printActivities(recent)
				}
				return nil
			})
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "search [term]",
		Short: "Find products by name or ID",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			term := ""
			if len(args) == 1 {
				term = args[0]
			}
			return c.withController(func(ctrl *app.Controller) error {
				found, err := ctrl.Search(term, category)
				if err != nil {
					return err
				}
				if len(found) == 0 {
					fmt.Fprintln(c.stdout, "no matching products")
					return nil
				}
				c.printProducts(found, ctrl.Config().Monitor.Threshold())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "restrict to a category")
	return cmd
}

func (c *cli) activityCmd() *cobra.Command {
	var (
		limit  int
		agent  string
		action string
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "List recorded activity, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			f := inventory.ActivityFilter{
				Agent:  inventory.Agent(agent),
				Action: action,
				Limit:  limit,
			}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			return c.withController(func(ctrl *app.Controller) error {
				recs, err := ctrl.Activities(f)
				if err != nil {
					return err
				}
				c.printActivities(recs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records, 0 for all")
	cmd.Flags().StringVar(&agent, "agent", "", "only records from this agent")
	cmd.Flags().StringVar(&action, "action", "", "only actions containing this text")
	cmd.Flags().DurationVar(&since, "since", 0, "only records newer than this age, e.g. 24h")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all products as CSV, or the full inventory document as JSON, to stdout",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			switch format {
			case "csv", "json":
			default:
				return fmt.Errorf("unknown export format %q (want csv or json)", format)
			}
			return c.withController(func(ctrl *app.Controller) error {
				if format == "json" {
					return ctrl.ExportJSON(c.stdout)
				}
				products, err := ctrl.Products()
				if err != nil {
					return err
				}
				return inventory.WriteProductsCSV(c.stdout, products)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv or json")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Send the inventory report on every channel now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withController(func(ctrl *app.Controller) error {
				if err := ctrl.SendReportNow(ctx(cmd)); err != nil {
					return err
				}
				fmt.Fprintln(c.stdout, "report sent via", strings.Join(ctrl.Channels(), ", "))
				return nil
			})
		},
	}
}

func (c *cli) suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "Compute reorder suggestions and send them on every channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withController(func(ctrl *app.Controller) error {
				s, err := ctrl.SuggestActionsNow(ctx(cmd))
				if s.Empty() {
					fmt.Fprintln(c.stdout, "nothing to reorder")
					return err
				}
				fmt.Fprintln(c.stdout, notifier.FormatSuggestion(s))
				if errors.Is(err, notifier.ErrNoChannels) {
					fmt.Fprintln(c.stderr, "warning: no channels configured, suggestions not sent")
					return nil
				}
				return err
			})
		},
	}
}

func (c *cli) alertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alert",
		Short: "Alert on every low or out-of-stock product now, ignoring earlier alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withController(func(ctrl *app.Controller) error {
				n, err := ctrl.TriggerAlertNow(ctx(cmd))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "%d alert(s) raised\n", n)
				return nil
			})
		},
	}
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config and print the effective settings summary",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			changes, _ := config.SummarizeConfigChange(config.Default(), cfg)
			fmt.Fprintln(c.stdout, "config ok")
			for _, ch := range changes {
				fmt.Fprintln(c.stdout, "  "+ch)
			}
			return nil
		},
	}
}

func (c *cli) printProducts(products []inventory.Product, threshold int) {
	tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tQTY\tPRICE\tSTATUS")
	for _, p := range products {
		status := "ok"
		if cond := inventory.Classify(p.Quantity, threshold); cond != inventory.ConditionNone {
			status = cond.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%s\n", p.ID, p.Name, p.Category, p.Quantity, p.Price, status)
	}
	_ = tw.Flush()
}

func (c *cli) printActivities(recs []inventory.ActivityRecord) {
	for _, r := range recs {
		fmt.Fprintf(c.stdout, "%s  %-16s %-13s %s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Agent, r.Action, r.Details)
	}
}

func ctx(cmd *cobra.Command) context.Context {
	if cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
