package domain

import "time"

// Gateway event types the reconciler understands.
const (
	EventSessionCompleted             = "checkout.session.completed"
	EventSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionExpired               = "checkout.session.expired"
	EventSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// Gateway session payment states.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Gateway session lifecycle states.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
)

// PaymentEvent is a verified gateway notification reduced to what reconciliation needs.
type PaymentEvent struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
	Created       time.Time
}

// StatusForEvent maps a gateway event to the internal status it resolves to.
// The boolean is false for events that do not resolve a checkout.
func StatusForEvent(e PaymentEvent) (Status, bool) {
	switch e.Type {
	case EventSessionCompleted:
		if e.PaymentStatus == PaymentStatusUnpaid {
			// delayed payment method; the async_payment_* event settles it
			return "", false
		}
		return StatusPaid, true
	case EventSessionAsyncPaymentSucceeded:
		return StatusPaid, true
	case EventSessionExpired:
		return StatusExpired, true
	case EventSessionAsyncPaymentFailed:
		return StatusFailed, true
	}
	return "", false
}

// StatusForSession maps a polled session state to an internal status.
func StatusForSession(sessionStatus, paymentStatus string) (Status, bool) {
	switch sessionStatus {
	case SessionStatusComplete:
		if paymentStatus == PaymentStatusUnpaid {
			return "", false
		}
		return StatusPaid, true
	case SessionStatusExpired:
		return StatusExpired, true
	}
	return "", false
}
