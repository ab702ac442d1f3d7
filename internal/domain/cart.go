package domain

import "time"

type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CartItem is one line of a cart. At most one exists per (cart, variety).
type CartItem struct {
	ID        int64   `json:"id"`
	CartID    int64   `json:"cartId"`
	VarietyID int64   `json:"varietyId"`
	Quantity  int     `json:"quantity"`
	Variety   Variety `json:"variety"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Item returns the line for varietyID, if present.
func (c *Cart) Item(varietyID int64) (CartItem, bool) {
	if c == nil {
		return CartItem{}, false
	}
	for _, item := range c.Items {
		if item.VarietyID == varietyID {
			return item, true
		}
	}
	return CartItem{}, false
}
