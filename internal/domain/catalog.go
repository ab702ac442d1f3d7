package domain

// Variety is a purchasable SKU owned by the catalog. Price is in minor currency units.
type Variety struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
}

// DisplayName is the label sent to the payment gateway for a line item.
func (v Variety) DisplayName() string {
	switch {
	case v.ProductName == "":
		return v.Name
	case v.Name == "":
		return v.ProductName
	}
	return v.ProductName + " - " + v.Name
}
