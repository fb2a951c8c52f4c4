package notifier

import (
	"fmt"
	"strings"

	"stockwatch/internal/inventory"
)

func prefixForCondition(c inventory.Condition) string {
	switch c {
	case inventory.ConditionOut:
		return "🚨 OUT OF STOCK"
	case inventory.ConditionLow:
		return "⚠️ LOW STOCK"
	default:
		return "ℹ️ STOCK"
	}
}

// FormatAlert renders an alert as a short chat message.
func FormatAlert(a Alert) string {
	var b strings.Builder
	b.WriteString(prefixForCondition(a.Condition))
	if a.Reminder {
		b.WriteString(" (reminder)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Product: %s (ID: %s)\n", a.Name, a.ProductID)
	fmt.Fprintf(&b, "Quantity: %d", a.Quantity)
	if a.Condition == inventory.ConditionLow {
		fmt.Fprintf(&b, " (threshold %d)", a.Threshold)
	}
	b.WriteString("\n")
	if !a.RaisedAt.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", a.RaisedAt.Format("2006-01-02 15:04:05"))
	}
	if a.ID != "" {
		fmt.Fprintf(&b, "Ref: %s", shortID(a.ID))
	}
	return strings.TrimRight(b.String(), "\n")
}

// AlertSubject is the email subject line for an alert.
func AlertSubject(a Alert) string {
	return fmt.Sprintf("%s: %s (%d left)", prefixForCondition(a.Condition), a.Name, a.Quantity)
}

// FormatReport renders the summary used by every channel.
func FormatReport(r Report) string {
	var b strings.Builder
	s := r.Snapshot
	b.WriteString("📊 Inventory report")
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, " (%s)", r.GeneratedAt.Format("2006-01-02 15:04"))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total products: %d\n", s.TotalProducts)
	fmt.Fprintf(&b, "Out of stock: %d\n", s.OutOfStock)
	fmt.Fprintf(&b, "Low stock (<%d): %d\n", s.Threshold, s.LowStock)
	fmt.Fprintf(&b, "Total value: $%s\n", money(s.TotalValue))

	var attention []inventory.Product
	for _, p := range r.Products {
		if inventory.Classify(p.Quantity, s.Threshold) != inventory.ConditionNone {
			attention = append(attention, p)
		}
	}
	if len(attention) > 0 {
		b.WriteString("\nNeeds attention:\n")
		for _, p := range attention {
			fmt.Fprintf(&b, "- %s (ID: %s): %d\n", p.Name, p.ID, p.Quantity)
		}
	}

	if len(r.Activities) > 0 {
		b.WriteString("\nRecent activity:\n")
		for _, a := range r.Activities {
			fmt.Fprintf(&b, "- %s [%s] %s: %s\n", a.Timestamp.Format("01-02 15:04"), a.Agent, a.Action, a.Details)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSuggestion renders reorder advice, one line per product.
func FormatSuggestion(s Suggestion) string {
	var b strings.Builder
	b.WriteString("🛒 Reorder suggestions\n")
	for _, it := range s.Items {
		fmt.Fprintf(&b, "- Reorder %d units of %s (ID: %s): %d on hand, %.1f sold/day\n",
			it.Reorder, it.Name, it.ProductID, it.Quantity, it.DailyRate)
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// money formats v with two decimals and thousands separators.
func money(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}
