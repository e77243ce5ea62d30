package payments

import "errors"

// Contract violations, raised before any gateway call is made.
var (
	ErrZeroAmount      = errors.New("order amount must be non-zero")
	ErrNoPaymentSource = errors.New("either a bankcard or a previous txn reference must be supplied")
)

// DeclinedError is returned when the gateway declines a payment. Message is
// the fixed user-safe text; gateway decline codes are never exposed through
// it.
type DeclinedError struct {
	Message string
}

func (e *DeclinedError) Error() string {
	return e.Message
}

// GatewayError is returned for non-decline failure responses. Message is a
// user-safe text looked up from the response status; the status itself is
// kept for internal use only.
type GatewayError struct {
	Message string
	Status  int
}

func (e *GatewayError) Error() string {
	return e.Message
}
