package domain

// InvoiceRecord is one extracted billing record. Every field is a best-effort
// extraction: an empty string means the source email did not carry the
// information. A record is never rejected for missing fields.
type InvoiceRecord struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	DueDate     string `json:"due_date"`
	Description string `json:"description"`
	Company     string `json:"company"`
	Contact     string `json:"contact"`
}

// InvoiceFields lists the record fields in persisted column order.
var InvoiceFields = []string{"amount", "currency", "due_date", "description", "company", "contact"}

// Columns returns the field values in InvoiceFields order.
func (r InvoiceRecord) Columns() []string {
	return []string{r.Amount, r.Currency, r.DueDate, r.Description, r.Company, r.Contact}
}
