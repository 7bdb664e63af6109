package core

import (
	"bottlecore/pkg/domain"
	"context"
	"strings"
	"testing"
)

func TestLowStockWarnsOnWorseningDrop(t *testing.T) {
	rule := NewLowStockRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionUpdate,
		Before: domain.ProductLedger{ProductID: "shampoo", ContainerCapacity: 100, SealedContainers: 3, MinThreshold: 2},
		After:  domain.ProductLedger{ProductID: "shampoo", ContainerCapacity: 100, SealedContainers: 1, OpenRemaining: 50, MinThreshold: 2},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected a single warning, got %+v", res.Violations)
	}
	v := res.Violations[0]
	if v.Rule != "low_stock" || v.Severity != domain.SeverityWarn || v.EntityID != "shampoo" {
		t.Fatalf("unexpected violation: %+v", v)
	}
	if !strings.Contains(v.Message, "dropped to low stock") {
		t.Fatalf("unexpected message: %s", v.Message)
	}
	if res.HasBlocking() {
		t.Fatalf("low stock warnings must not block")
	}
}

func TestLowStockWarnsOnDropToOut(t *testing.T) {
	rule := NewLowStockRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionUpdate,
		Before: domain.ProductLedger{ProductID: "serum", ContainerCapacity: 30, SealedContainers: 1},
		After:  domain.ProductLedger{ProductID: "serum", ContainerCapacity: 30},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || !strings.Contains(res.Violations[0].Message, "dropped to out stock") {
		t.Fatalf("expected out-of-stock warning, got %+v", res.Violations)
	}
}

func TestLowStockSilentWhenCategoryUnchanged(t *testing.T) {
	rule := NewLowStockRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionUpdate,
		Before: domain.ProductLedger{ProductID: "p", ContainerCapacity: 100, SealedContainers: 2, OpenRemaining: 50, MinThreshold: 2},
		After:  domain.ProductLedger{ProductID: "p", ContainerCapacity: 100, SealedContainers: 2, OpenRemaining: 10, MinThreshold: 2},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("drops within the same category must stay silent, got %+v", res.Violations)
	}
}

func TestLowStockSilentWhenStockIncreases(t *testing.T) {
	rule := NewLowStockRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionUpdate,
		Before: domain.ProductLedger{ProductID: "p", ContainerCapacity: 100, OpenRemaining: 50},
		After:  domain.ProductLedger{ProductID: "p", ContainerCapacity: 100, SealedContainers: 5, OpenRemaining: 50},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("restocks must stay silent, got %+v", res.Violations)
	}
}

func TestLowStockSilentOnCreate(t *testing.T) {
	rule := NewLowStockRule()
	res, err := rule.Evaluate(context.Background(), staticView{}, []domain.Change{{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionCreate,
		After:  domain.ProductLedger{ProductID: "p", ContainerCapacity: 100, SealedContainers: 1, MinThreshold: 3},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("create actions must stay silent, got %+v", res.Violations)
	}
}
