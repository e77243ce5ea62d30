package gateway

// Transaction methods supported by the gateway protocol.
// The same strings are stored on audit records and upper-cased inside
// merchant references.
const (
	Auth      = "auth"
	Pre       = "pre"
	Fulfill   = "fulfill"
	Refund    = "refund"
	TxnRefund = "txn_refund"
	Cancel    = "cancel"
)

// Outcome classifies a gateway response.
type Outcome int

const (
	OutcomeSuccessful Outcome = iota
	OutcomeDeclined
	OutcomeError
)

// Protocol status codes with fixed meanings.
const (
	StatusAccepted = 1
	StatusDeclined = 7
)

// Card holds raw card details supplied by the caller. Card data is used
// transiently to build a gateway request and is never persisted in clear form.
type Card struct {
	Number     string `json:"number" binding:"required"`
	ExpiryDate string `json:"expiry_date" binding:"required"` // MM/YY
	CCV        string `json:"ccv"`
}

// BillingAddress is an optional set of up to four address lines plus a
// postcode. Only the lines actually present are forwarded to the gateway.
type BillingAddress struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2"`
	Line3    string `json:"line3"`
	Line4    string `json:"line4"`
	Postcode string `json:"postcode"`
}

// Request carries the named parameters for a single gateway call. Operations
// populate either the card fields or PreviousTxnReference, never both.
type Request struct {
	Amount            float64
	Currency          string
	MerchantReference string

	// Fresh-card mode
	CardNumber string
	ExpiryDate string
	CCV        string

	// Continuing-authority mode (auth/pre/refund against a stored reference)
	PreviousTxnReference string

	// Historic-transaction mode (fulfill, txn_refund, cancel)
	TxnReference string
	AuthCode     string

	AddressLine1 string
	AddressLine2 string
	AddressLine3 string
	AddressLine4 string
	Postcode     string
}

// Response is the structured result of a gateway round trip. Outcome is the
// tagged classification; RequestXML/ResponseXML hold the raw wire payloads
// for auditing.
type Response struct {
	Outcome           Outcome
	Status            int
	Reason            string
	Reference         string // gateway-assigned transaction reference
	MerchantReference string
	AuthCode          string
	RequestXML        string
	ResponseXML       string
}

func (r *Response) IsSuccessful() bool {
	return r.Outcome == OutcomeSuccessful
}

func (r *Response) IsDeclined() bool {
	return r.Outcome == OutcomeDeclined
}
