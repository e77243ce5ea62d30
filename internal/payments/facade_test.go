package payments

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cardstream/payments-api/internal/gateway"
)

const sampleRequestXML = `<Request><Authentication><client>99000001</client><password>secret</password></Authentication><Transaction><CardTxn><method>pre</method><Card><pan>4111111111111111</pan><expirydate>01/30</expirydate><cv2>123</cv2></Card></CardTxn></Transaction></Request>`

// stubGateway is a scripted Gateway implementation. It records every call
// and replays the configured responses in order.
type stubGateway struct {
	calls     int
	methods   []string
	lastReq   gateway.Request
	responses []*gateway.Response
	err       error
}

func (g *stubGateway) next(method string, req gateway.Request) (*gateway.Response, error) {
	g.calls++
	g.methods = append(g.methods, method)
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	resp := *g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	// A real gateway echoes the merchant reference back
	if resp.MerchantReference == "" {
		resp.MerchantReference = req.MerchantReference
	}
	return &resp, nil
}

func (g *stubGateway) Auth(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	return g.next(gateway.Auth, req)
}

func (g *stubGateway) Pre(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	return g.next(gateway.Pre, req)
}

func (g *stubGateway) Fulfill(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	return g.next(gateway.Fulfill, req)
}

func (g *stubGateway) Refund(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	return g.next(gateway.Refund, req)
}

func (g *stubGateway) TxnRefund(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	return g.next(gateway.TxnRefund, req)
}

func (g *stubGateway) Cancel(_ context.Context, txnReference string) (*gateway.Response, error) {
	return g.next(gateway.Cancel, gateway.Request{TxnReference: txnReference})
}

func successResponse(ref string) *gateway.Response {
	return &gateway.Response{
		Outcome:     gateway.OutcomeSuccessful,
		Status:      gateway.StatusAccepted,
		Reason:      "ACCEPTED",
		Reference:   ref,
		AuthCode:    "060642",
		RequestXML:  sampleRequestXML,
		ResponseXML: "<Response><status>1</status><reason>ACCEPTED</reason></Response>",
	}
}

func declinedResponse() *gateway.Response {
	return &gateway.Response{
		Outcome:     gateway.OutcomeDeclined,
		Status:      gateway.StatusDeclined,
		Reason:      "CARD_EXPIRED",
		RequestXML:  sampleRequestXML,
		ResponseXML: "<Response><status>7</status><reason>DECLINED</reason></Response>",
	}
}

func errorResponse(status int) *gateway.Response {
	return &gateway.Response{
		Outcome:     gateway.OutcomeError,
		Status:      status,
		Reason:      "ERROR",
		RequestXML:  sampleRequestXML,
		ResponseXML: fmt.Sprintf("<Response><status>%d</status></Response>", status),
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&OrderTransaction{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestFacade(t *testing.T, stub *stubGateway) (*Facade, *Database) {
	t.Helper()
	db := newTestDB(t)
	facade := NewFacade(stub, db, "GBP", rand.New(rand.NewSource(42)))
	return facade, NewDatabase(db)
}

func testCard() *gateway.Card {
	return &gateway.Card{Number: "4111111111111111", ExpiryDate: "01/30", CCV: "123"}
}

func TestPreAuthoriseZeroAmount(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW123")}}
	facade, db := newTestFacade(t, stub)

	_, err := facade.PreAuthorise(context.Background(), "A100", 0, testCard(), "", nil)

	assert.ErrorIs(t, err, ErrZeroAmount)
	assert.Equal(t, 0, stub.calls)

	txns, _ := db.GetTransactionsForOrder("A100")
	assert.Empty(t, txns)
}

func TestAuthoriseZeroAmount(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW123")}}
	facade, _ := newTestFacade(t, stub)

	_, err := facade.Authorise(context.Background(), "A100", 0, testCard(), "", nil)

	assert.ErrorIs(t, err, ErrZeroAmount)
	assert.Equal(t, 0, stub.calls)
}

func TestPreAuthoriseRequiresCardOrReference(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW123")}}
	facade, db := newTestFacade(t, stub)

	_, err := facade.PreAuthorise(context.Background(), "A100", 49.99, nil, "", nil)

	assert.ErrorIs(t, err, ErrNoPaymentSource)
	assert.Equal(t, 0, stub.calls)

	txns, _ := db.GetTransactionsForOrder("A100")
	assert.Empty(t, txns)
}

func TestRefundRequiresCardOrReference(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW123")}}
	facade, _ := newTestFacade(t, stub)

	_, err := facade.Refund(context.Background(), "A100", 10.00, nil, "")

	assert.ErrorIs(t, err, ErrNoPaymentSource)
	assert.Equal(t, 0, stub.calls)
}

func TestPreAuthoriseSuccess(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW123")}}
	facade, db := newTestFacade(t, stub)

	ref, err := facade.PreAuthorise(context.Background(), "A100", 49.99, testCard(), "", nil)

	assert.NoError(t, err)
	assert.Equal(t, "GW123", ref)
	assert.Equal(t, []string{gateway.Pre}, stub.methods)
	assert.Equal(t, "4111111111111111", stub.lastReq.CardNumber)
	assert.Equal(t, "GBP", stub.lastReq.Currency)
	assert.Regexp(t, regexp.MustCompile(`^A100_PRE_1_\d{4}$`), stub.lastReq.MerchantReference)

	txns, err := db.GetTransactionsForOrder("A100")
	assert.NoError(t, err)
	assert.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, gateway.Pre, txn.Method)
	assert.Equal(t, "GW123", txn.DatacashReference)
	assert.Equal(t, gateway.StatusAccepted, txn.Status)
	if assert.NotNil(t, txn.Amount) {
		assert.Equal(t, 49.99, *txn.Amount)
	}
	// Redaction happened before the write
	assert.NotContains(t, txn.RequestXML, "4111111111111111")
	assert.Contains(t, txn.RequestXML, "XXXXXXXXXXXX")
	assert.Contains(t, txn.RequestXML, "<cv2>XXX</cv2>")
	assert.Contains(t, txn.RequestXML, "<password>XXX</password>")
}

func TestPreAuthoriseWithPreviousReference(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW124")}}
	facade, _ := newTestFacade(t, stub)

	ref, err := facade.PreAuthorise(context.Background(), "A100", 20.00, nil, "GW123", nil)

	assert.NoError(t, err)
	assert.Equal(t, "GW124", ref)
	assert.Equal(t, "GW123", stub.lastReq.PreviousTxnReference)
	assert.Empty(t, stub.lastReq.CardNumber)
}

func TestAuthoriseDeclined(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{declinedResponse()}}
	facade, db := newTestFacade(t, stub)

	_, err := facade.Authorise(context.Background(), "A100", 49.99, testCard(), "", nil)

	var declined *DeclinedError
	if assert.ErrorAs(t, err, &declined) {
		assert.Equal(t, "The transaction was declined by your bank - please check your bankcard details and try again", declined.Message)
	}

	// Declines are still recorded
	txns, _ := db.GetTransactionsForOrder("A100")
	assert.Len(t, txns, 1)
	assert.Equal(t, gateway.StatusDeclined, txns[0].Status)
}

func TestFulfillErrorStatusMapping(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{errorResponse(19), errorResponse(42)}}
	facade, db := newTestFacade(t, stub)

	_, err := facade.FulfillTransaction(context.Background(), "A100", 49.99, "GW123", "060642")
	var gwErr *GatewayError
	if assert.ErrorAs(t, err, &gwErr) {
		assert.Equal(t, "Unable to fulfill transaction", gwErr.Message)
		assert.Equal(t, 19, gwErr.Status)
	}

	_, err = facade.FulfillTransaction(context.Background(), "A100", 49.99, "GW123", "060642")
	gwErr = nil
	if assert.ErrorAs(t, err, &gwErr) {
		assert.Equal(t, "An error occurred when communicating with the payment gateway.", gwErr.Message)
	}

	// Both error attempts are recorded
	txns, _ := db.GetTransactionsForOrder("A100")
	assert.Len(t, txns, 2)
}

func TestTransportFailureNotRecorded(t *testing.T) {
	transportErr := errors.New("connection reset by peer")
	stub := &stubGateway{err: transportErr}
	facade, db := newTestFacade(t, stub)

	_, err := facade.Authorise(context.Background(), "A100", 49.99, testCard(), "", nil)

	assert.ErrorIs(t, err, transportErr)

	// No response was received, so no record is produced
	txns, _ := db.GetTransactionsForOrder("A100")
	assert.Empty(t, txns)
}

func TestFulfillGeneratesFreshReferences(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{
		successResponse("GW200"),
		successResponse("GW201"),
	}}
	facade, _ := newTestFacade(t, stub)

	// Split shipment: two partial fulfills against the same pre-auth
	_, err := facade.FulfillTransaction(context.Background(), "A100", 25.00, "GW123", "060642")
	assert.NoError(t, err)
	first := stub.lastReq.MerchantReference

	_, err = facade.FulfillTransaction(context.Background(), "A100", 24.99, "GW123", "060642")
	assert.NoError(t, err)
	second := stub.lastReq.MerchantReference

	assert.Regexp(t, regexp.MustCompile(`^A100_FULFILL_1_\d{4}$`), first)
	assert.Regexp(t, regexp.MustCompile(`^A100_FULFILL_2_\d{4}$`), second)
	assert.NotEqual(t, first, second)
}

func TestRefundTransaction(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW300")}}
	facade, db := newTestFacade(t, stub)

	ref, err := facade.RefundTransaction(context.Background(), "A100", 49.99, "GW123")

	assert.NoError(t, err)
	assert.Equal(t, "GW300", ref)
	assert.Equal(t, []string{gateway.TxnRefund}, stub.methods)
	assert.Equal(t, "GW123", stub.lastReq.TxnReference)
	// txn_refund sends no merchant reference of its own
	assert.Empty(t, stub.lastReq.MerchantReference)

	txns, _ := db.GetTransactionsForOrder("A100")
	assert.Len(t, txns, 1)
	assert.Equal(t, gateway.TxnRefund, txns[0].Method)
}

func TestCancelRecordsNoAmount(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW400")}}
	facade, db := newTestFacade(t, stub)

	ref, err := facade.CancelTransaction(context.Background(), "A100", "GW123")

	assert.NoError(t, err)
	assert.Equal(t, "GW400", ref)
	assert.Equal(t, []string{gateway.Cancel}, stub.methods)

	txns, _ := db.GetTransactionsForOrder("A100")
	assert.Len(t, txns, 1)
	assert.Equal(t, gateway.Cancel, txns[0].Method)
	assert.Nil(t, txns[0].Amount)
}

func TestSparseAddressForwarding(t *testing.T) {
	stub := &stubGateway{responses: []*gateway.Response{successResponse("GW500")}}
	facade, _ := newTestFacade(t, stub)

	address := &gateway.BillingAddress{Line1: "1 Egg Street", Postcode: "N12 9RT"}
	_, err := facade.Authorise(context.Background(), "A100", 10.00, testCard(), "", address)

	assert.NoError(t, err)
	assert.Equal(t, "1 Egg Street", stub.lastReq.AddressLine1)
	assert.Empty(t, stub.lastReq.AddressLine2)
	assert.Equal(t, "N12 9RT", stub.lastReq.Postcode)
}
