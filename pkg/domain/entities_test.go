package domain

import "testing"

func TestTotalAvailableDerivation(t *testing.T) {
	ledger := ProductLedger{ContainerCapacity: 1000, SealedContainers: 2, OpenRemaining: 300}
	if got := ledger.TotalAvailable(); got != 2300 {
		t.Fatalf("expected total 2300, got %d", got)
	}
}

func TestStockStatusClassification(t *testing.T) {
	cases := []struct {
		name   string
		ledger ProductLedger
		want   StockStatus
	}{
		{
			name:   "healthy reserves",
			ledger: ProductLedger{ContainerCapacity: 1000, SealedContainers: 5, MinThreshold: 2},
			want:   StockGood,
		},
		{
			name:   "sealed at threshold",
			ledger: ProductLedger{ContainerCapacity: 1000, SealedContainers: 2, MinThreshold: 2},
			want:   StockLow,
		},
		{
			name:   "sealed below threshold",
			ledger: ProductLedger{ContainerCapacity: 1000, SealedContainers: 1, OpenRemaining: 500, MinThreshold: 2},
			want:   StockLow,
		},
		{
			name:   "only open container left",
			ledger: ProductLedger{ContainerCapacity: 1000, SealedContainers: 0, OpenRemaining: 400, MinThreshold: 2},
			want:   StockCritical,
		},
		{
			name:   "nothing left",
			ledger: ProductLedger{ContainerCapacity: 1000, SealedContainers: 0, OpenRemaining: 0, MinThreshold: 2},
			want:   StockOut,
		},
		{
			name:   "zero threshold never low",
			ledger: ProductLedger{ContainerCapacity: 1000, SealedContainers: 1, MinThreshold: 0},
			want:   StockGood,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ledger.StockStatus(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestStockStatusOutTakesPrecedence(t *testing.T) {
	// An empty ledger also has zero sealed containers; the emptiness check
	// must win over the critical check.
	ledger := ProductLedger{ContainerCapacity: 1000, MinThreshold: 3}
	if got := ledger.StockStatus(); got != StockOut {
		t.Fatalf("expected out, got %s", got)
	}
}

func TestStockStatusRankOrdering(t *testing.T) {
	order := []StockStatus{StockGood, StockLow, StockCritical, StockOut}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("expected %s to rank above %s", order[i], order[i-1])
		}
	}
}

func TestResultWarnings(t *testing.T) {
	res := Result{Violations: []Violation{
		{Rule: "a", Severity: SeverityBlock},
		{Rule: "b", Severity: SeverityWarn},
		{Rule: "c", Severity: SeverityWarn},
	}}
	warnings := res.Warnings()
	if len(warnings) != 2 || warnings[0].Rule != "b" || warnings[1].Rule != "c" {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
}
