package model

// MaxDisplayedInvalid caps how many failed addresses a report shows
const MaxDisplayedInvalid = 5

// EmptyAddress stands in for a row whose Email cell is blank
const EmptyAddress = "(empty)"

// DispatchReport summarizes one mailing run
type DispatchReport struct {
	Total            int      `json:"total"`
	SuccessCount     int      `json:"successCount"`
	ErrorCount       int      `json:"errorCount"`
	InvalidAddresses []string `json:"invalidAddresses"`
}

// NewDispatchReport creates an empty report for total rows
func NewDispatchReport(total int) *DispatchReport {
	return &DispatchReport{
		Total:            total,
		InvalidAddresses: []string{},
	}
}

// RecordSuccess counts one delivered message
func (r *DispatchReport) RecordSuccess() {
	r.SuccessCount++
}

// RecordFailure counts one row that was skipped or rejected
func (r *DispatchReport) RecordFailure(address string) {
	if address == "" {
		address = EmptyAddress
	}
	r.ErrorCount++
	r.InvalidAddresses = append(r.InvalidAddresses, address)
}

// Displayed returns the failed addresses shown to the user and how many were left out
func (r *DispatchReport) Displayed() ([]string, int) {
	if len(r.InvalidAddresses) <= MaxDisplayedInvalid {
		return r.InvalidAddresses, r.ErrorCount - len(r.InvalidAddresses)
	}
	return r.InvalidAddresses[:MaxDisplayedInvalid], r.ErrorCount - MaxDisplayedInvalid
}

// Balanced reports whether every row was counted exactly once
func (r *DispatchReport) Balanced() bool {
	return r.SuccessCount+r.ErrorCount == r.Total
}
