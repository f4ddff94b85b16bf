package core

import "errors"

var (
	ErrHelp = errors.New("")

	ErrOrderNotFound     = errors.New("order not found")
	ErrItemNotFound      = errors.New("order item not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrPaymentMethod     = errors.New("payment method is required")

	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrDrainInProgress   = errors.New("action queue drain already in progress")
	ErrUnknownAction     = errors.New("unknown action type")
	ErrSubscriptionEnded = errors.New("change subscription ended")
)

// IsPermanent reports whether a delivery error can never succeed on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrItemNotFound)
}
