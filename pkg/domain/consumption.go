package domain

import "fmt"

// ConsumptionPlan is the computed effect of deducting an amount from a
// ledger. It carries the post-consumption container counts without touching
// the ledger itself, so callers can gate on feasibility before committing.
type ConsumptionPlan struct {
	Consumed         Volume
	ContainersOpened ContainerCount
	SealedContainers ContainerCount
	OpenRemaining    Volume
}

// PlanConsumption computes how a deduction drains a ledger. The open
// container drains first; sealed containers are opened one at a time and only
// as far as the remaining amount requires, so at most one container is ever
// open. A zero amount yields a no-op plan. The ledger is not modified.
func PlanConsumption(ledger ProductLedger, amount Volume) (ConsumptionPlan, error) {
	plan := ConsumptionPlan{
		SealedContainers: ledger.SealedContainers,
		OpenRemaining:    ledger.OpenRemaining,
	}
	if amount < 0 {
		return ConsumptionPlan{}, fmt.Errorf("consumption amount must not be negative, got %d", amount)
	}
	if amount == 0 {
		return plan, nil
	}
	if total := ledger.TotalAvailable(); amount > total {
		return ConsumptionPlan{}, InsufficientStockError{
			ProductID: ledger.ProductID,
			Name:      ledger.Name,
			Required:  amount,
			Available: total,
		}
	}
	remaining := amount
	if drawn := min(plan.OpenRemaining, remaining); drawn > 0 {
		plan.OpenRemaining -= drawn
		remaining -= drawn
	}
	for remaining > 0 {
		plan.SealedContainers--
		plan.ContainersOpened++
		drawn := ledger.ContainerCapacity
		if drawn > remaining {
			drawn = remaining
		}
		plan.OpenRemaining = ledger.ContainerCapacity - drawn
		remaining -= drawn
	}
	plan.Consumed = amount
	return plan, nil
}
