package payments

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cardstream/payments-api/internal/gateway"
	"github.com/cardstream/payments-api/pkg/response"
)

// User-safe messages. Gateway decline codes and reason strings stay inside
// the audit record and are never surfaced through these.
const (
	declineMessage      = "The transaction was declined by your bank - please check your bankcard details and try again"
	gatewayErrorMessage = "An error occurred when communicating with the payment gateway."
)

// Known error statuses mapped to friendly messages. Extend this table
// deliberately; anything unmapped falls back to the generic message.
var errorMessages = map[int]string{
	19: "Unable to fulfill transaction",
}

// Facade is the bridge between the order pipeline and the gateway client. It
// holds no per-call state; everything persistent lives in the transaction
// record store.
type Facade struct {
	gateway  gateway.Gateway
	db       *Database
	refs     *ReferenceGenerator
	currency string
}

// NewFacade creates a payments facade. Currency is injected from
// configuration and fixed for the life of the facade. A nil rng falls back
// to a time-seeded source.
func NewFacade(gw gateway.Gateway, gormDB *gorm.DB, currency string, rng *rand.Rand) *Facade {
	db := NewDatabase(gormDB)
	return &Facade{
		gateway:  gw,
		db:       db,
		refs:     NewReferenceGenerator(db, rng),
		currency: currency,
	}
}

// ========================
// API - 2 stage processing
// ========================

// PreAuthorise ring-fences an amount of money from the given card. This is
// the first stage of a two-stage payment; a further call to
// FulfillTransaction is required to debit the money. Exactly one of card and
// txnReference must be supplied.
func (f *Facade) PreAuthorise(ctx context.Context, orderNumber string, amount float64, card *gateway.Card, txnReference string, billingAddress *gateway.BillingAddress) (string, error) {
	return f.authorisation(ctx, gateway.Pre, orderNumber, amount, card, txnReference, billingAddress)
}

// FulfillTransaction settles a previously ring-fenced transaction. Split
// shipments mean fulfills after the first must carry a different merchant
// reference to the original, which the per-method reference count provides.
func (f *Facade) FulfillTransaction(ctx context.Context, orderNumber string, amount float64, txnReference, authCode string) (string, error) {
	logger := f.opLogger(gateway.Fulfill, orderNumber)

	merchantRef, err := f.refs.Generate(orderNumber, gateway.Fulfill)
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate merchant reference")
		return "", err
	}

	resp, err := f.gateway.Fulfill(ctx, gateway.Request{
		Amount:            amount,
		Currency:          f.currency,
		MerchantReference: merchantRef,
		TxnReference:      txnReference,
		AuthCode:          authCode,
	})
	if err != nil {
		logger.Error().Err(err).Msg("gateway call failed")
		return "", err
	}
	return f.handleResponse(gateway.Fulfill, orderNumber, &amount, resp)
}

// RefundTransaction refunds against a previous transaction.
func (f *Facade) RefundTransaction(ctx context.Context, orderNumber string, amount float64, txnReference string) (string, error) {
	logger := f.opLogger(gateway.TxnRefund, orderNumber)

	resp, err := f.gateway.TxnRefund(ctx, gateway.Request{
		Amount:       amount,
		Currency:     f.currency,
		TxnReference: txnReference,
	})
	if err != nil {
		logger.Error().Err(err).Msg("gateway call failed")
		return "", err
	}
	return f.handleResponse(gateway.TxnRefund, orderNumber, &amount, resp)
}

// CancelTransaction voids a transaction that has not been fulfilled. Cancels
// carry no amount; the audit record stores it as absent.
func (f *Facade) CancelTransaction(ctx context.Context, orderNumber, txnReference string) (string, error) {
	logger := f.opLogger(gateway.Cancel, orderNumber)

	resp, err := f.gateway.Cancel(ctx, txnReference)
	if err != nil {
		logger.Error().Err(err).Msg("gateway call failed")
		return "", err
	}
	return f.handleResponse(gateway.Cancel, orderNumber, nil, resp)
}

// ========================
// API - 1 stage processing
// ========================

// Authorise debits a card for the given amount in a single stage. A card or
// a txnReference can be passed depending on whether a new or stored card is
// being charged.
func (f *Facade) Authorise(ctx context.Context, orderNumber string, amount float64, card *gateway.Card, txnReference string, billingAddress *gateway.BillingAddress) (string, error) {
	return f.authorisation(ctx, gateway.Auth, orderNumber, amount, card, txnReference, billingAddress)
}

// Refund returns funds to a card or stored reference.
func (f *Facade) Refund(ctx context.Context, orderNumber string, amount float64, card *gateway.Card, txnReference string) (string, error) {
	logger := f.opLogger(gateway.Refund, orderNumber)

	merchantRef, err := f.refs.Generate(orderNumber, gateway.Refund)
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate merchant reference")
		return "", err
	}

	req := gateway.Request{
		Amount:            amount,
		Currency:          f.currency,
		MerchantReference: merchantRef,
	}
	if err := applyPaymentSource(&req, card, txnReference); err != nil {
		return "", err
	}

	resp, err := f.gateway.Refund(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("gateway call failed")
		return "", err
	}
	return f.handleResponse(gateway.Refund, orderNumber, &amount, resp)
}

// GetTransactions returns the audit trail for an order, newest first, for
// support tooling.
func (f *Facade) GetTransactions(orderNumber string) ([]OrderTransaction, error) {
	return f.db.GetTransactionsForOrder(orderNumber)
}

// authorisation is the shared template for the auth and pre methods, which
// take identical inputs.
func (f *Facade) authorisation(ctx context.Context, method, orderNumber string, amount float64, card *gateway.Card, txnReference string, billingAddress *gateway.BillingAddress) (string, error) {
	logger := f.opLogger(method, orderNumber)

	if amount == 0 {
		logger.Warn().Msg("rejected zero-amount authorisation")
		return "", ErrZeroAmount
	}

	merchantRef, err := f.refs.Generate(orderNumber, method)
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate merchant reference")
		return "", err
	}

	req := gateway.Request{
		Amount:            amount,
		Currency:          f.currency,
		MerchantReference: merchantRef,
	}
	applyAddress(&req, billingAddress)
	if err := applyPaymentSource(&req, card, txnReference); err != nil {
		logger.Warn().Msg("rejected call with no payment source")
		return "", err
	}

	logger.Debug().
		Str("merchant_reference", merchantRef).
		Float64("amount", amount).
		Msg("sending authorisation to gateway")

	var resp *gateway.Response
	if method == gateway.Pre {
		resp, err = f.gateway.Pre(ctx, req)
	} else {
		resp, err = f.gateway.Auth(ctx, req)
	}
	if err != nil {
		// Transport failures propagate unmodified; no response was
		// received so there is nothing to record.
		logger.Error().Err(err).Msg("gateway call failed")
		return "", err
	}

	return f.handleResponse(method, orderNumber, &amount, resp)
}

// handleResponse records the attempt and converts the gateway outcome into a
// return value or typed failure. Recording always happens before anything is
// returned to the caller.
func (f *Facade) handleResponse(method, orderNumber string, amount *float64, resp *gateway.Response) (string, error) {
	f.recordTxn(method, orderNumber, amount, resp)

	switch resp.Outcome {
	case gateway.OutcomeSuccessful:
		return resp.Reference, nil
	case gateway.OutcomeDeclined:
		return "", &DeclinedError{Message: declineMessage}
	default:
		return "", &GatewayError{
			Message: friendlyErrorMessage(resp.Status),
			Status:  resp.Status,
		}
	}
}

// recordTxn writes the audit record for a received response. The write is
// best-effort: a storage failure is logged but must not mask the gateway
// outcome.
func (f *Facade) recordTxn(method, orderNumber string, amount *float64, resp *gateway.Response) {
	txn := &OrderTransaction{
		OrderNumber:       orderNumber,
		Method:            method,
		Amount:            amount,
		MerchantReference: resp.MerchantReference,
		DatacashReference: resp.Reference,
		AuthCode:          resp.AuthCode,
		Status:            resp.Status,
		Reason:            resp.Reason,
		RequestXML:        RedactSensitive(resp.RequestXML),
		ResponseXML:       resp.ResponseXML,
		DateCreated:       time.Now(),
	}

	if err := f.db.CreateTransaction(txn); err != nil {
		log.Error().
			Err(err).
			Str("order_number", orderNumber).
			Str("method", method).
			Msg("failed to persist transaction record")
		return
	}

	log.Info().
		Str("order_number", orderNumber).
		Str("method", method).
		Str("merchant_reference", txn.MerchantReference).
		Str("gateway_reference", txn.DatacashReference).
		Int("status", txn.Status).
		Msg("recorded gateway transaction")
}

func friendlyErrorMessage(status int) string {
	if msg, ok := errorMessages[status]; ok {
		return msg
	}
	return gatewayErrorMessage
}

func (f *Facade) opLogger(method, orderNumber string) zerolog.Logger {
	return log.With().
		Str("order_number", orderNumber).
		Str("method", method).
		Str("service", "payments").
		Logger()
}

// applyPaymentSource enforces the card-XOR-reference contract and copies the
// chosen source onto the request.
func applyPaymentSource(req *gateway.Request, card *gateway.Card, txnReference string) error {
	switch {
	case card != nil:
		req.CardNumber = card.Number
		req.ExpiryDate = card.ExpiryDate
		req.CCV = card.CCV
	case txnReference != "":
		req.PreviousTxnReference = txnReference
	default:
		return ErrNoPaymentSource
	}
	return nil
}

// applyAddress forwards only the address lines actually present; missing
// lines are never synthesized.
func applyAddress(req *gateway.Request, address *gateway.BillingAddress) {
	if address == nil {
		return
	}
	req.AddressLine1 = address.Line1
	req.AddressLine2 = address.Line2
	req.AddressLine3 = address.Line3
	req.AddressLine4 = address.Line4
	req.Postcode = address.Postcode
}

// GinHandlers contains HTTP handlers for payment endpoints
type GinHandlers struct {
	facade *Facade
}

// NewGinHandlers creates a new set of HTTP handlers for payment endpoints
func NewGinHandlers(facade *Facade) *GinHandlers {
	return &GinHandlers{
		facade: facade,
	}
}

type authoriseRequest struct {
	Amount         float64                 `json:"amount"`
	Card           *gateway.Card           `json:"card"`
	TxnReference   string                  `json:"txn_reference"`
	BillingAddress *gateway.BillingAddress `json:"billing_address"`
}

type fulfillRequest struct {
	Amount       float64 `json:"amount"`
	TxnReference string  `json:"txn_reference" binding:"required"`
	AuthCode     string  `json:"auth_code" binding:"required"`
}

type refundRequest struct {
	Amount       float64       `json:"amount"`
	Card         *gateway.Card `json:"card"`
	TxnReference string        `json:"txn_reference"`
}

type txnRefundRequest struct {
	Amount       float64 `json:"amount"`
	TxnReference string  `json:"txn_reference" binding:"required"`
}

type cancelRequest struct {
	TxnReference string `json:"txn_reference" binding:"required"`
}

// PreAuthoriseHandler handles POST requests to ring-fence funds
// URL parameter: order_number
func (h *GinHandlers) PreAuthoriseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req authoriseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		ref, err := h.facade.PreAuthorise(c.Request.Context(), c.Param("order_number"),
			req.Amount, req.Card, req.TxnReference, req.BillingAddress)
		h.respond(c, ref, err)
	}
}

// AuthoriseHandler handles POST requests for one-stage payments
func (h *GinHandlers) AuthoriseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req authoriseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		ref, err := h.facade.Authorise(c.Request.Context(), c.Param("order_number"),
			req.Amount, req.Card, req.TxnReference, req.BillingAddress)
		h.respond(c, ref, err)
	}
}

// FulfillHandler handles POST requests to capture ring-fenced funds
func (h *GinHandlers) FulfillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req fulfillRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		ref, err := h.facade.FulfillTransaction(c.Request.Context(), c.Param("order_number"),
			req.Amount, req.TxnReference, req.AuthCode)
		h.respond(c, ref, err)
	}
}

// RefundHandler handles POST requests for one-stage refunds
func (h *GinHandlers) RefundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		ref, err := h.facade.Refund(c.Request.Context(), c.Param("order_number"),
			req.Amount, req.Card, req.TxnReference)
		h.respond(c, ref, err)
	}
}

// RefundTransactionHandler handles POST requests to refund a prior transaction
func (h *GinHandlers) RefundTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req txnRefundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		ref, err := h.facade.RefundTransaction(c.Request.Context(), c.Param("order_number"),
			req.Amount, req.TxnReference)
		h.respond(c, ref, err)
	}
}

// CancelHandler handles POST requests to void an unfulfilled transaction
func (h *GinHandlers) CancelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		ref, err := h.facade.CancelTransaction(c.Request.Context(), c.Param("order_number"),
			req.TxnReference)
		h.respond(c, ref, err)
	}
}

// GetTransactionsHandler handles GET requests for an order's audit trail
func (h *GinHandlers) GetTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		txns, err := h.facade.GetTransactions(c.Param("order_number"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		out := make([]TransactionResponse, len(txns))
		for i := range txns {
			out[i] = NewTransactionResponse(&txns[i])
		}
		response.Success(c, out)
	}
}

// respond maps facade outcomes onto the response envelope.
func (h *GinHandlers) respond(c *gin.Context, ref string, err error) {
	if err == nil {
		response.Success(c, gin.H{"datacash_reference": ref})
		return
	}

	var declined *DeclinedError
	var gwErr *GatewayError
	switch {
	case errors.Is(err, ErrZeroAmount), errors.Is(err, ErrNoPaymentSource):
		response.BadRequest(c, err.Error())
	case errors.As(err, &declined):
		response.PaymentRequired(c, declined.Message)
	case errors.As(err, &gwErr):
		response.BadGateway(c, gwErr.Message)
	default:
		response.Handle(c, nil, err)
	}
}
