package core

import (
	"bottlecore/pkg/domain"
	"context"
	"fmt"
)

// NewLowStockRule returns a warn-severity rule flagging updates that drop a
// product into a worse stock category. The warning rides on the transaction
// result so callers can alert without a separate classifier sweep.
func NewLowStockRule() domain.Rule {
	return lowStockRule{}
}

type lowStockRule struct{}

func (lowStockRule) Name() string { return "low_stock" }

func (lowStockRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityProductLedger || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := change.Before.(domain.ProductLedger)
		if !ok {
			continue
		}
		after, ok := change.After.(domain.ProductLedger)
		if !ok {
			continue
		}
		if after.TotalAvailable() >= before.TotalAvailable() {
			continue
		}
		status := after.StockStatus()
		if status == domain.StockGood || status.Rank() <= before.StockStatus().Rank() {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "low_stock",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("product %s dropped to %s stock: %d sealed, %d remaining in open container", after.ProductID, status, after.SealedContainers, after.OpenRemaining),
			Entity:   domain.EntityProductLedger,
			EntityID: after.ProductID,
		})
	}
	return res, nil
}
