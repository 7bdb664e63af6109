// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by bottlecore.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProductLedger identifies a per-product stock ledger record.
	EntityProductLedger EntityType = "product_ledger"
	// EntityConsumptionEntry identifies an append-only consumption history record.
	EntityConsumptionEntry EntityType = "consumption_entry"
)

// Volume is a quantity of product expressed in the product's base unit
// (milliliters for liquids, grams for powders). Volumes and container counts
// are distinct types so the two can never be mixed in arithmetic.
type Volume int64

// ContainerCount counts whole sealed containers.
type ContainerCount int

// StockStatus classifies the health of a product's stock position.
type StockStatus string

// Stock statuses ordered from healthiest to most depleted.
const (
	// StockGood indicates reserves above the reorder threshold.
	StockGood StockStatus = "good"
	// StockLow indicates sealed reserves at or below the reorder threshold.
	StockLow StockStatus = "low"
	// StockCritical indicates only the open container remains.
	StockCritical StockStatus = "critical"
	// StockOut indicates no stock at all.
	StockOut StockStatus = "out"
)

// Rank orders statuses by depletion: good < low < critical < out. Useful for
// sorting alerts and detecting degradations.
func (s StockStatus) Rank() int {
	switch s {
	case StockLow:
		return 1
	case StockCritical:
		return 2
	case StockOut:
		return 3
	default:
		return 0
	}
}

// ProductLedger tracks the stock position of a single product: a number of
// sealed containers of identical capacity plus at most one open container.
// ContainerCapacity never changes after provisioning; replacing packaging
// sizes means provisioning a new product.
type ProductLedger struct {
	ProductID         string         `json:"product_id"`
	Name              string         `json:"name"`
	Unit              string         `json:"unit,omitempty"`
	ContainerCapacity Volume         `json:"container_capacity"`
	SealedContainers  ContainerCount `json:"sealed_containers"`
	OpenRemaining     Volume         `json:"open_remaining"`
	MinThreshold      ContainerCount `json:"min_threshold"`
	Active            bool           `json:"active"`
	Sequence          uint64         `json:"sequence"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TotalAvailable returns the usable volume across sealed containers and the
// open container. It is always derived, never stored.
func (l ProductLedger) TotalAvailable() Volume {
	return Volume(l.SealedContainers)*l.ContainerCapacity + l.OpenRemaining
}

// StockStatus classifies the ledger. Rules are evaluated in order and the
// first match wins: out when nothing remains, critical when only the open
// container remains, low when sealed reserves are at or below the threshold.
func (l ProductLedger) StockStatus() StockStatus {
	switch {
	case l.TotalAvailable() == 0:
		return StockOut
	case l.SealedContainers == 0:
		return StockCritical
	case l.SealedContainers <= l.MinThreshold:
		return StockLow
	default:
		return StockGood
	}
}

// Clone returns an independent copy of the ledger.
func (l ProductLedger) Clone() ProductLedger { return l }

// Correlation links a consumption back to the business event that caused it.
type Correlation struct {
	SaleID    string `json:"sale_id,omitempty"`
	ServiceID string `json:"service_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

// ConsumptionRequest asks the engine to deduct an amount of product.
type ConsumptionRequest struct {
	ProductID   string      `json:"product_id"`
	Amount      Volume      `json:"amount"`
	Correlation Correlation `json:"correlation,omitempty"`
}

// ConsumptionResult reports the outcome of a successful consumption.
type ConsumptionResult struct {
	ProductID        string         `json:"product_id"`
	Consumed         Volume         `json:"consumed"`
	ContainersOpened ContainerCount `json:"containers_opened"`
	SealedContainers ContainerCount `json:"sealed_containers"`
	OpenRemaining    Volume         `json:"open_remaining"`
	TotalAvailable   Volume         `json:"total_available"`
}

// ConsumptionEntry is one immutable record in the consumption history. The
// Sequence is assigned per product inside the serialized ledger write, so it
// defines the logical order of entries even when appends interleave.
type ConsumptionEntry struct {
	ID               string         `json:"id"`
	ProductID        string         `json:"product_id"`
	Sequence         uint64         `json:"sequence"`
	Amount           Volume         `json:"amount"`
	ContainersOpened ContainerCount `json:"containers_opened"`
	BeforeSealed     ContainerCount `json:"before_sealed"`
	BeforeOpen       Volume         `json:"before_open"`
	AfterSealed      ContainerCount `json:"after_sealed"`
	AfterOpen        Volume         `json:"after_open"`
	Correlation      Correlation    `json:"correlation,omitempty"`
	OccurredAt       time.Time      `json:"occurred_at"`
}

// Clone returns an independent copy of the entry.
func (e ConsumptionEntry) Clone() ConsumptionEntry { return e }

// ProductAlert is one line of a stock health sweep.
type ProductAlert struct {
	ProductID        string         `json:"product_id"`
	Name             string         `json:"name,omitempty"`
	Status           StockStatus    `json:"status"`
	SealedContainers ContainerCount `json:"sealed_containers"`
	OpenRemaining    Volume         `json:"open_remaining"`
	TotalAvailable   Volume         `json:"total_available"`
	MinThreshold     ContainerCount `json:"min_threshold"`
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the warn-severity violations, preserving order.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

func (l ProductLedger) label() string {
	if l.Name != "" {
		return fmt.Sprintf("%s (%s)", l.Name, l.ProductID)
	}
	return l.ProductID
}
