package gateway

import "context"

// Gateway is the capability consumed by the payments facade: one method per
// transaction method. Implementations own the wire protocol; callers set
// their own timeout and cancellation policy through ctx. Transport failures
// are returned as errors with no Response; a Response is only returned when
// the gateway actually answered.
type Gateway interface {
	// Auth debits a card or stored reference in a single stage.
	Auth(ctx context.Context, req Request) (*Response, error)

	// Pre ring-fences an amount without capturing it.
	Pre(ctx context.Context, req Request) (*Response, error)

	// Fulfill captures funds previously ring-fenced by a pre-authorisation.
	Fulfill(ctx context.Context, req Request) (*Response, error)

	// Refund returns funds to a card or stored reference.
	Refund(ctx context.Context, req Request) (*Response, error)

	// TxnRefund refunds against a previous transaction.
	TxnRefund(ctx context.Context, req Request) (*Response, error)

	// Cancel voids a transaction that has not yet been fulfilled.
	Cancel(ctx context.Context, txnReference string) (*Response, error)
}
