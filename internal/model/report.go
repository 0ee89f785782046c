package model

// OutcomeStatus is the terminal state of one SKU in a reconciliation run.
type OutcomeStatus string

const (
	OutcomeUpdated OutcomeStatus = "updated"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Failure reasons that callers match on.
const (
	ReasonNotFound         = "not found"
	ReasonNoInventoryLevel = "no inventory levels"
	ReasonEmptySKU         = "empty sku"
	ReasonNegativeQuantity = "negative quantity"
)

// Failure names a SKU that was not reconciled and why.
type Failure struct {
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

// Outcome is the per-SKU detail behind the report counters.
type Outcome struct {
	Company string        `json:"company"`
	SKU     string        `json:"sku"`
	Status  OutcomeStatus `json:"status"`
	Target  int           `json:"target"`
	Current *int          `json:"current,omitempty"`
	Delta   int           `json:"delta"`
	Reason  string        `json:"reason,omitempty"`
}

// ReconciliationReport aggregates one reconciliation run.
type ReconciliationReport struct {
	Processed int       `json:"processed"`
	Updated   int       `json:"updated"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures"`
	Outcomes  []Outcome `json:"outcomes"`
}

// NewReconciliationReport returns a report with non-nil slices so it
// always serializes as arrays.
func NewReconciliationReport() *ReconciliationReport {
	return &ReconciliationReport{
		Failures: []Failure{},
		Outcomes: []Outcome{},
	}
}

// Record adds one outcome and bumps the matching counter.
func (r *ReconciliationReport) Record(o Outcome) {
	r.Processed++
	switch o.Status {
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
		r.Failures = append(r.Failures, Failure{SKU: o.SKU, Reason: o.Reason})
	}
	r.Outcomes = append(r.Outcomes, o)
}
