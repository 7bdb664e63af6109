package core

import (
	"bottlecore/pkg/domain"
	"context"
	"strings"
	"testing"
)

// staticView satisfies domain.RuleView for rule tests that evaluate staged
// changes without a store.
type staticView struct {
	ledgers []domain.ProductLedger
}

func (v staticView) ListLedgers() []domain.ProductLedger { return v.ledgers }

func (v staticView) FindLedger(productID string) (domain.ProductLedger, bool) {
	for _, ledger := range v.ledgers {
		if ledger.ProductID == productID {
			return ledger, true
		}
	}
	return domain.ProductLedger{}, false
}

func TestLedgerBoundsBlocksNonPositiveCapacity(t *testing.T) {
	rule := NewLedgerBoundsRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionCreate,
		After:  domain.ProductLedger{ProductID: "p", ContainerCapacity: 0, SealedContainers: 1},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for zero capacity, got %+v", res)
	}
	if res.Violations[0].Rule != "ledger_bounds" || res.Violations[0].EntityID != "p" {
		t.Fatalf("unexpected violation: %+v", res.Violations[0])
	}
}

func TestLedgerBoundsBlocksOverfullOpenContainer(t *testing.T) {
	rule := NewLedgerBoundsRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionUpdate,
		Before: domain.ProductLedger{ProductID: "p", ContainerCapacity: 500, SealedContainers: 1},
		After:  domain.ProductLedger{ProductID: "p", ContainerCapacity: 500, SealedContainers: 1, OpenRemaining: 501},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for overfull open container")
	}
	if !strings.Contains(res.Violations[0].Message, "exceeds container capacity") {
		t.Fatalf("unexpected message: %s", res.Violations[0].Message)
	}
}

func TestLedgerBoundsBlocksNegativeCounts(t *testing.T) {
	rule := NewLedgerBoundsRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionCreate,
		After: domain.ProductLedger{
			ProductID:         "p",
			ContainerCapacity: 100,
			SealedContainers:  -1,
			OpenRemaining:     -5,
			MinThreshold:      -2,
		},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 3 {
		t.Fatalf("expected one violation per negative field, got %+v", res.Violations)
	}
}

func TestLedgerBoundsBlocksCapacityChange(t *testing.T) {
	rule := NewLedgerBoundsRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionUpdate,
		Before: domain.ProductLedger{ProductID: "p", ContainerCapacity: 1000, SealedContainers: 2},
		After:  domain.ProductLedger{ProductID: "p", ContainerCapacity: 500, SealedContainers: 2},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation for capacity change")
	}
	if !strings.Contains(res.Violations[0].Message, "immutable") {
		t.Fatalf("unexpected message: %s", res.Violations[0].Message)
	}
}

func TestLedgerBoundsAcceptsValidLedger(t *testing.T) {
	rule := NewLedgerBoundsRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionUpdate,
		Before: domain.ProductLedger{ProductID: "p", ContainerCapacity: 1000, SealedContainers: 2, OpenRemaining: 300},
		After:  domain.ProductLedger{ProductID: "p", ContainerCapacity: 1000, SealedContainers: 1, OpenRemaining: 900},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("valid transition must pass, got %+v", res.Violations)
	}
}

func TestLedgerBoundsIgnoresOtherEntities(t *testing.T) {
	rule := NewLedgerBoundsRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityConsumptionEntry,
		Action: domain.ActionCreate,
		After:  domain.ConsumptionEntry{ID: "e1"},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("non-ledger changes must be ignored, got %+v", res.Violations)
	}
}
