package privacy

// Class identifies a regulated-data category.
type Class string

const (
	ClassTaxID           Class = "tax_id"
	ClassBankRoutingCode Class = "bank_routing_code"
	ClassNationalID      Class = "national_id"
	ClassAccountNumber   Class = "account_number"
	ClassEmailAddress    Class = "email_address"
	ClassPhoneNumber     Class = "phone_number"
)

// Match is one located occurrence of a class within a text. Matches carry raw
// values and must never be logged or persisted.
type Match struct {
	Class Class
	Start int
	End   int
	Value string
}

// Finding summarizes how many spans of a class were masked. It carries no raw data.
type Finding struct {
	Class Class `json:"class"`
	Count int   `json:"count"`
}

// ProcessResult contains the result of masking a text
type ProcessResult struct {
	MaskedText string    `json:"maskedText"`
	Findings   []Finding `json:"findings"`
}

// Total returns the number of masked spans across all classes.
func (r ProcessResult) Total() int {
	total := 0
	for _, f := range r.Findings {
		total += f.Count
	}
	return total
}
