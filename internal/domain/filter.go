package domain

import "time"

// PageSize is the fixed page length of order and invoice listings.
const PageSize = 10

type OrderFilter struct {
	Status *Status
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type InvoiceFilter struct {
	Status *Status
	From   *time.Time
	To     *time.Time
}

// Offset converts a 1-based page number to a row offset. Pages below 1 are treated as 1.
func Offset(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * PageSize
}
