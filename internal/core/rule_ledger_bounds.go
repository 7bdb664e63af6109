package core

import (
	"bottlecore/pkg/domain"
	"context"
	"fmt"
)

// NewLedgerBoundsRule returns the default in-transaction rule enforcing
// ledger bound constraints: non-negative counts, the open container never
// exceeding one capacity, and container capacity staying fixed for the
// product's lifetime.
func NewLedgerBoundsRule() domain.Rule {
	return ledgerBoundsRule{}
}

type ledgerBoundsRule struct{}

func (ledgerBoundsRule) Name() string { return "ledger_bounds" }

func (ledgerBoundsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityProductLedger {
			continue
		}
		after, ok := change.After.(domain.ProductLedger)
		if !ok {
			continue
		}
		block := func(message string) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "ledger_bounds",
				Severity: domain.SeverityBlock,
				Message:  message,
				Entity:   domain.EntityProductLedger,
				EntityID: after.ProductID,
			})
		}
		if after.ContainerCapacity <= 0 {
			block(fmt.Sprintf("product %s container capacity must be positive, got %d", after.ProductID, after.ContainerCapacity))
		}
		if after.SealedContainers < 0 {
			block(fmt.Sprintf("product %s sealed containers must not be negative, got %d", after.ProductID, after.SealedContainers))
		}
		if after.OpenRemaining < 0 {
			block(fmt.Sprintf("product %s open remaining must not be negative, got %d", after.ProductID, after.OpenRemaining))
		}
		if after.ContainerCapacity > 0 && after.OpenRemaining > after.ContainerCapacity {
			block(fmt.Sprintf("product %s open remaining %d exceeds container capacity %d", after.ProductID, after.OpenRemaining, after.ContainerCapacity))
		}
		if after.MinThreshold < 0 {
			block(fmt.Sprintf("product %s minimum threshold must not be negative, got %d", after.ProductID, after.MinThreshold))
		}
		if change.Action == domain.ActionUpdate {
			if before, ok := change.Before.(domain.ProductLedger); ok && before.ContainerCapacity != after.ContainerCapacity {
				block(fmt.Sprintf("product %s container capacity is immutable: %d -> %d", after.ProductID, before.ContainerCapacity, after.ContainerCapacity))
			}
		}
	}
	return res, nil
}
