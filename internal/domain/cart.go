package domain

type LineKind string

const (
	LineKindPlan      LineKind = "plan"
	LineKindEquipment LineKind = "equipment"
	LineKindAccessory LineKind = "accessory"
)

func (k LineKind) Valid() bool {
	return k == LineKindPlan || k == LineKindEquipment || k == LineKindAccessory
}

// Shippable reports whether a line of this kind is physically delivered.
func (k LineKind) Shippable() bool {
	return k == LineKindEquipment || k == LineKindAccessory
}

type CartItem struct {
	CartID       string   `json:"cart_id" bson:"cart_id"`
	ProductID    string   `json:"product_id" bson:"product_id"`
	Name         string   `json:"name,omitempty" bson:"name,omitempty"`
	Quantity     int      `json:"quantity" bson:"quantity"`
	UnitPrice    float64  `json:"unit_price" bson:"unit_price"`
	Installments int      `json:"installments" bson:"installments"`
	Kind         LineKind `json:"kind" bson:"kind"`
	ParentCartID string   `json:"parent_cart_id,omitempty" bson:"parent_cart_id,omitempty"`
}

func (c CartItem) Subtotal() float64 {
	return c.UnitPrice * float64(c.Quantity)
}

// Monthly is the per-month share of the line when it is paid in installments.
func (c CartItem) Monthly() float64 {
	if c.Installments <= 1 {
		return 0
	}
	return c.Subtotal() / float64(c.Installments)
}

// FindCartItem returns the mirrored line with the given cart id.
func FindCartItem(items []CartItem, cartID string) (CartItem, bool) {
	for _, item := range items {
		if item.CartID == cartID {
			return item, true
		}
	}
	return CartItem{}, false
}
