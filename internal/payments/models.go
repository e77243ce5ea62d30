package payments

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

// OrderTransaction is the audit record for a single gateway attempt. One row
// is written per attempt, successful or not, and rows are never updated or
// deleted. No foreign key to an order: the order may not exist yet when the
// transaction takes place.
type OrderTransaction struct {
	gorm.Model `json:"-"`

	OrderNumber string `gorm:"index" json:"order_number"`

	// The gateway method - one of 'auth', 'pre', 'fulfill', ...
	Method string `json:"method"`

	// Nil for cancels, which carry no amount.
	Amount *float64 `json:"amount"`

	MerchantReference string `json:"merchant_reference"`

	// Response fields
	DatacashReference string `json:"datacash_reference"`
	AuthCode          string `json:"auth_code"`
	Status            int    `json:"status"`
	Reason            string `json:"reason"`

	// Full XML payloads kept for support staff. RequestXML is redacted
	// before the row is written.
	RequestXML  string `json:"request_xml"`
	ResponseXML string `json:"response_xml"`

	DateCreated time.Time `json:"date_created"`
}

func (t *OrderTransaction) String() string {
	return fmt.Sprintf("%s txn for order %s - ref: %s, status: %d",
		strings.ToUpper(t.Method), t.OrderNumber, t.DatacashReference, t.Status)
}

// TransactionResponse is the API representation of an audit record, with the
// stored XML pretty-printed for operator inspection.
type TransactionResponse struct {
	OrderNumber       string    `json:"order_number"`
	Method            string    `json:"method"`
	Amount            *float64  `json:"amount"`
	MerchantReference string    `json:"merchant_reference"`
	DatacashReference string    `json:"datacash_reference"`
	AuthCode          string    `json:"auth_code"`
	Status            int       `json:"status"`
	Reason            string    `json:"reason"`
	RequestXML        string    `json:"request_xml"`
	ResponseXML       string    `json:"response_xml"`
	DateCreated       time.Time `json:"date_created"`
}

// NewTransactionResponse converts a stored record for API output.
func NewTransactionResponse(t *OrderTransaction) TransactionResponse {
	return TransactionResponse{
		OrderNumber:       t.OrderNumber,
		Method:            t.Method,
		Amount:            t.Amount,
		MerchantReference: t.MerchantReference,
		DatacashReference: t.DatacashReference,
		AuthCode:          t.AuthCode,
		Status:            t.Status,
		Reason:            t.Reason,
		RequestXML:        PrettyXML(t.RequestXML),
		ResponseXML:       PrettyXML(t.ResponseXML),
		DateCreated:       t.DateCreated,
	}
}

var (
	panPattern      = regexp.MustCompile(`\d{12}`)
	cv2Pattern      = regexp.MustCompile(`<cv2>\d+</cv2>`)
	passwordPattern = regexp.MustCompile(`<password>.*</password>`)
)

// RedactSensitive masks card numbers, CVV elements and password elements in a
// request payload. It is a pure function applied before every write so no
// alternate persistence path can bypass it, and it is idempotent: redacted
// output passes through unchanged.
func RedactSensitive(requestXML string) string {
	redacted := panPattern.ReplaceAllString(requestXML, "XXXXXXXXXXXX")
	redacted = cv2Pattern.ReplaceAllString(redacted, "<cv2>XXX</cv2>")
	redacted = passwordPattern.ReplaceAllString(redacted, "<password>XXX</password>")
	return redacted
}

// PrettyXML re-indents an XML payload for display. Formatting is a read-side
// convenience only; records always store the compact wire form. Payloads that
// fail to parse are returned untouched.
func PrettyXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf bytes.Buffer
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "    ")

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		// Drop whitespace-only text nodes so indentation stays clean
		if cd, ok := tok.(xml.CharData); ok && len(bytes.TrimSpace(cd)) == 0 {
			continue
		}
		if err := encoder.EncodeToken(tok); err != nil {
			return raw
		}
	}
	if err := encoder.Flush(); err != nil {
		return raw
	}
	return buf.String()
}
