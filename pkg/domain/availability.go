package domain

import "fmt"

// Requirement is one product demand line in an availability check.
type Requirement struct {
	ProductID string `json:"product_id"`
	Amount    Volume `json:"amount"`
}

// RequirementStatus reports the verdict for a single requirement line.
// Available is the stock remaining before this line was applied, after all
// earlier lines for the same product were deducted.
type RequirementStatus struct {
	ProductID   string `json:"product_id"`
	Required    Volume `json:"required"`
	Available   Volume `json:"available"`
	Satisfiable bool   `json:"satisfiable"`
}

// Shortfall describes an unsatisfiable requirement in purchasing terms.
type Shortfall struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Required  Volume `json:"required"`
	Available Volume `json:"available"`
}

// Missing returns the volume that would have to be acquired to satisfy the
// requirement.
func (s Shortfall) Missing() Volume { return s.Required - s.Available }

func (s Shortfall) String() string {
	label := s.ProductID
	if s.Name != "" {
		label = fmt.Sprintf("%s (%s)", s.Name, s.ProductID)
	}
	unit := s.Unit
	if unit == "" {
		unit = "units"
	}
	return fmt.Sprintf("%s: need %d %s, have %d %s", label, s.Required, unit, s.Available, unit)
}

// AvailabilityReport is the outcome of a dry-run stock check. It never
// reserves stock; a positive report is advisory and can be invalidated by
// consumptions that land between the check and the deduction.
type AvailabilityReport struct {
	Requirements   []RequirementStatus `json:"requirements"`
	AllSatisfiable bool                `json:"all_satisfiable"`
	Shortfalls     []Shortfall         `json:"shortfalls,omitempty"`
}

// BuildAvailabilityReport evaluates requirements against ledgers supplied by
// find, which reports whether a product is known. Requirements are charged
// cumulatively in order, so two lines for the same product must fit within
// that product's stock together. Unknown products and negative amounts are
// unsatisfiable but never abort the report.
func BuildAvailabilityReport(find func(productID string) (ProductLedger, bool), requirements []Requirement) AvailabilityReport {
	report := AvailabilityReport{AllSatisfiable: true}
	remaining := map[string]Volume{}
	ledgers := map[string]ProductLedger{}
	known := map[string]bool{}
	for _, req := range requirements {
		if _, seen := known[req.ProductID]; !seen {
			ledger, ok := find(req.ProductID)
			known[req.ProductID] = ok
			if ok {
				ledgers[req.ProductID] = ledger
				remaining[req.ProductID] = ledger.TotalAvailable()
			}
		}
		available := remaining[req.ProductID]
		status := RequirementStatus{
			ProductID: req.ProductID,
			Required:  req.Amount,
			Available: available,
		}
		switch {
		case !known[req.ProductID]:
			status.Available = 0
		case req.Amount < 0:
		case req.Amount <= available:
			status.Satisfiable = true
			remaining[req.ProductID] = available - req.Amount
		}
		if !status.Satisfiable {
			report.AllSatisfiable = false
			ledger := ledgers[req.ProductID]
			report.Shortfalls = append(report.Shortfalls, Shortfall{
				ProductID: req.ProductID,
				Name:      ledger.Name,
				Unit:      ledger.Unit,
				Required:  req.Amount,
				Available: status.Available,
			})
		}
		report.Requirements = append(report.Requirements, status)
	}
	return report
}
