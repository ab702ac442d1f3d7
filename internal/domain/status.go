package domain

// Status is shared by Order and Invoice.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusExpired  Status = "expired"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusExpired || s == StatusFailed || s == StatusCanceled
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusExpired, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// String representation (for logging)
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo allows only pending -> terminal. Every terminal status is final.
func CanTransitionTo(from, to Status) bool {
	return from == StatusPending && to.IsTerminal()
}

// ReleasesStock reports whether reaching s returns the reserved stock to the catalog.
func (s Status) ReleasesStock() bool {
	return s == StatusExpired || s == StatusFailed || s == StatusCanceled
}
