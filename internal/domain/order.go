package domain

import "time"

// Order represents one checkout attempt. Amounts are in minor currency units.
type Order struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"userId"`
	AddressID *int64      `json:"addressId,omitempty"`
	Total     int64       `json:"total"`
	Currency  string      `json:"currency"`
	Status    Status      `json:"status"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// OrderItem is an immutable snapshot of a cart line taken at checkout.
type OrderItem struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"orderId"`
	VarietyID int64  `json:"varietyId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// Invoice is the financial record tied 1:1 to an Order. TransactionID is the
// gateway checkout session id.
type Invoice struct {
	ID            int64     `json:"id"`
	OrderID       int64     `json:"orderId"`
	TransactionID string    `json:"transactionId"`
	Bank          string    `json:"bank"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Date          time.Time `json:"date"`
	Status        Status    `json:"status"`
	Order         *Order    `json:"order,omitempty"`
}

// OrderItemsFromCart snapshots the cart lines.
func OrderItemsFromCart(cart *Cart) []OrderItem {
	items := make([]OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, OrderItem{
			VarietyID: line.VarietyID,
			Name:      line.Variety.DisplayName(),
			Quantity:  line.Quantity,
			UnitPrice: line.Variety.Price,
		})
	}
	return items
}
