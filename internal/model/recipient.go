package model

// EmailColumn is the column every recipient spreadsheet must carry
const EmailColumn = "Email"

// Recipient is one spreadsheet row keyed by column name
type Recipient map[string]string

// Email returns the value of the Email column
func (r Recipient) Email() string {
	return r[EmailColumn]
}

// RecipientTable is the ordered content of an uploaded spreadsheet
type RecipientTable struct {
	Columns []string
	Rows    []Recipient
}

// HasColumn checks whether the header row contains name (case-sensitive)
func (t *RecipientTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Len returns the number of recipient rows
func (t *RecipientTable) Len() int {
	return len(t.Rows)
}
