package domain

type Address struct {
	Street     string `json:"street" bson:"street"`
	Number     string `json:"number" bson:"number"`
	Unit       string `json:"unit,omitempty" bson:"unit,omitempty"`
	City       string `json:"city" bson:"city"`
	Region     string `json:"region,omitempty" bson:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty" bson:"postal_code,omitempty"`
}

func (a Address) Complete() bool {
	return a.Street != "" && a.Number != "" && a.City != ""
}

type Coverage struct {
	Available    bool   `json:"available" bson:"available"`
	Technology   string `json:"technology,omitempty" bson:"technology,omitempty"`
	MaxSpeedMbps int    `json:"max_speed_mbps,omitempty" bson:"max_speed_mbps,omitempty"`
	LocationID   string `json:"location_id,omitempty" bson:"location_id,omitempty"`
}

type Location struct {
	Address  Address  `json:"address" bson:"address"`
	Coverage Coverage `json:"coverage" bson:"coverage"`
}

type Plan struct {
	ID                string  `json:"id" bson:"id"`
	Name              string  `json:"name" bson:"name"`
	SpeedMbps         int     `json:"speed_mbps" bson:"speed_mbps"`
	MonthlyPrice      float64 `json:"monthly_price" bson:"monthly_price"`
	RequiresEquipment bool    `json:"requires_equipment" bson:"requires_equipment"`
}

type ContractTerm struct {
	ID            string  `json:"id" bson:"id"`
	Months        int     `json:"months" bson:"months"`
	PermanenceFee float64 `json:"permanence_fee" bson:"permanence_fee"`
	Description   string  `json:"description,omitempty" bson:"description,omitempty"`
}

type CatalogueProduct struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         LineKind `json:"kind"`
	Price        float64  `json:"price"`
	Installments []int    `json:"installments,omitempty"`
	Stock        int      `json:"stock"`
}

// AllowsInstallments reports whether n is one of the installment counts the
// product can be paid in. Products without options only accept a single payment.
func (p CatalogueProduct) AllowsInstallments(n int) bool {
	if n <= 1 {
		return true
	}
	for _, option := range p.Installments {
		if option == n {
			return true
		}
	}
	return false
}

type ShippingOption struct {
	ID            string  `json:"id" bson:"id"`
	Name          string  `json:"name" bson:"name"`
	Price         float64 `json:"price" bson:"price"`
	EstimatedDays int     `json:"estimated_days" bson:"estimated_days"`
}
