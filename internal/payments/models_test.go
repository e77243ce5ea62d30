package payments

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactSensitive(t *testing.T) {
	raw := `<Request><Authentication><password>secret</password></Authentication>` +
		`<Card><pan>4111111111111111</pan><cv2>1234</cv2></Card></Request>`

	redacted := RedactSensitive(raw)

	assert.NotContains(t, redacted, "4111111111111111")
	assert.NotContains(t, redacted, "411111111111")
	assert.Contains(t, redacted, "XXXXXXXXXXXX")
	assert.NotContains(t, redacted, "<cv2>1234</cv2>")
	assert.Contains(t, redacted, "<cv2>XXX</cv2>")
	assert.NotContains(t, redacted, "secret")
	assert.Contains(t, redacted, "<password>XXX</password>")
}

func TestRedactSensitiveIdempotent(t *testing.T) {
	raw := `<Request><password>secret</password><pan>123456789012</pan><cv2>999</cv2></Request>`

	once := RedactSensitive(raw)
	twice := RedactSensitive(once)

	assert.Equal(t, once, twice)
}

func TestRedactSensitiveLeavesShortDigitRuns(t *testing.T) {
	raw := `<merchantreference>A100_PRE_1_0042</merchantreference>`

	assert.Equal(t, raw, RedactSensitive(raw))
}

func TestPrettyXML(t *testing.T) {
	compact := `<Response><status>1</status><reason>ACCEPTED</reason></Response>`

	pretty := PrettyXML(compact)

	lines := strings.Split(pretty, "\n")
	assert.Greater(t, len(lines), 2)
	assert.Contains(t, pretty, "    <status>1</status>")
	assert.Contains(t, pretty, "<Response>")
}

func TestPrettyXMLInvalidInputUnchanged(t *testing.T) {
	broken := `<Response><status>1</Response>`

	assert.Equal(t, broken, PrettyXML(broken))
}

func TestOrderTransactionString(t *testing.T) {
	txn := &OrderTransaction{
		OrderNumber:       "A100",
		Method:            "pre",
		DatacashReference: "GW123",
		Status:            1,
	}

	assert.Equal(t, "PRE txn for order A100 - ref: GW123, status: 1", txn.String())
}
