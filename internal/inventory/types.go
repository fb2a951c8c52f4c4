package inventory

import "time"

// DefaultLowStockThreshold is the quantity below which a product counts as low stock.
const DefaultLowStockThreshold = 10

// Product is one inventory row.
type Product struct {
	ID          string
	Name        string
	Category    string
	Quantity    int
	Price       float64
	LastUpdated time.Time
}

// Value is quantity times unit price.
func (p Product) Value() float64 { return float64(p.Quantity) * p.Price }

// Agent tags who produced an activity record.
type Agent string

const (
	AgentMonitor   Agent = "monitor"
	AgentMessaging Agent = "messaging-agent"
	AgentEmail     Agent = "email-agent"
	AgentExternal  Agent = "external-caller"
)

// Action tags what an activity record describes. Free-form, these are the conventional values.
type Action string

const (
	ActionAddProduct     Action = "add_product"
	ActionSellProduct    Action = "sell_product"
	ActionUpdateQuantity Action = "update_quantity"
	ActionUpdateProduct  Action = "update_product"
	ActionDeleteProduct  Action = "delete_product"
	ActionAlert          Action = "alert"
	ActionNotification   Action = "notification"
	ActionReport         Action = "report"
	ActionSuggestion     Action = "suggestion"
	ActionError          Action = "error"
)

// ActivityRecord is immutable once appended.
type ActivityRecord struct {
	Timestamp time.Time
	Agent     Agent
	Action    Action
	Details   string
}

// Condition is the stock severity of a product relative to a threshold.
// Ordered: a larger value is more severe.
type Condition int

const (
	ConditionNone Condition = iota
	ConditionLow
	ConditionOut
)

func (c Condition) String() string {
	switch c {
	case ConditionLow:
		return "low"
	case ConditionOut:
		return "out"
	default:
		return "none"
	}
}

// Classify maps a quantity to a condition: out at zero, low below threshold.
func Classify(quantity, threshold int) Condition {
	switch {
	case quantity <= 0:
		return ConditionOut
	case quantity < threshold:
		return ConditionLow
	default:
		return ConditionNone
	}
}

// Snapshot is the aggregate inventory health, computed fresh on every call.
type Snapshot struct {
	TotalProducts int
	OutOfStock    int
	LowStock      int
	TotalValue    float64
	Threshold     int
	TakenAt       time.Time
}
