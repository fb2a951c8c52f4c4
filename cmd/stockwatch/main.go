package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stockwatch/internal/app"
	"stockwatch/internal/config"
	"stockwatch/internal/monitor"
	logx "stockwatch/pkg/logx"
	"stockwatch/pkg/systemd"
)

const shutdownTimeout = 15 * time.Second

type cli struct {
	configPath string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "stockwatch",
		Short:         "stockwatch - inventory tracking with low-stock alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("STOCKWATCH_CONFIG"), "path to config (json or yaml); empty uses defaults and environment")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "error", "log level for one-shot commands")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the monitor, scheduled reports and config watcher until signalled",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.run(cmd.Context()) },
		},
	)
	c.addCommands(root)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func (c *cli) loadConfig() (*config.ConfigManager, *config.Config, error) {
	cfgm := config.NewConfigManager(c.configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfgm, cfg, nil
}

// run is the long-lived mode. SIGHUP restarts the controller, which reloads
// the store from disk; SIGINT and SIGTERM shut it down.
func (c *cli) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfgm, cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logs, log := logx.New(app.LogConfig(cfg))
	ctrl := app.New(cfg, app.WithConfigManager(cfgm), app.WithLogger(log), app.WithLogService(logs))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		_ = logs.Close()
		return fmt.Errorf("start: %w", err)
	}
	systemd.Ready()
	systemd.Status("monitoring " + cfg.Store.Path)
	go systemd.Watchdog(ctx, log, func() bool { return ctrl.State() != monitor.StateStopped })

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	reason := app.StopUnknown
	for reason == app.StopUnknown {
		select {
		case <-parent.Done():
			reason = app.StopAppStop
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				systemd.Reloading()
				log.Info("SIGHUP received, restarting")
				rctx, rcancel := context.WithTimeout(context.Background(), shutdownTimeout)
				err := ctrl.Restart(rctx)
				rcancel()
				if err != nil {
					log.Error("restart failed", logx.Err(err))
					reason = app.StopFatalError
					continue
				}
				systemd.Ready()
			case syscall.SIGTERM:
				reason = app.StopSIGTERM
			default:
				reason = app.StopSIGINT
			}
		}
	}

	systemd.Stopping()
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	return ctrl.Stop(sctx, reason)
}

// open builds a controller with the store loaded and channels built but no
// background work running. The returned func persists and closes it.
func (c *cli) open() (*app.Controller, func() error, error) {
	cfgm, cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logx.NewWriter(c.stderr, c.logLevel)
	ctrl := app.New(cfg, app.WithConfigManager(cfgm), app.WithLogger(log))
	if err := ctrl.Open(); err != nil {
		return nil, nil, err
	}
	closeFn := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return ctrl.Shutdown(ctx)
	}
	return ctrl, closeFn, nil
}

// withController runs fn against an opened controller and shuts it down
// afterwards. A shutdown error is returned only when fn succeeded.
func (c *cli) withController(fn func(*app.Controller) error) (err error) {
	ctrl, closeFn, err := c.open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctrl)
}
