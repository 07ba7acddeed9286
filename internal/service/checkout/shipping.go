package checkout

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/models"
)

// ShippingPolicy prices delivery. Orders over the free-shipping threshold
// ship for free; everything else pays the flat rate. Destinations outside the
// metro states pay the surcharge regardless of order size.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	FlatRate      decimal.Decimal
	Surcharge     decimal.Decimal
	MetroStates   []string
}

func (p ShippingPolicy) Cost(subtotal decimal.Decimal, addr models.Address) decimal.Decimal {
	cost := p.FlatRate
	if subtotal.GreaterThanOrEqual(p.FreeThreshold) {
		cost = decimal.Zero
	}
	if !p.metro(addr.State) {
		cost = cost.Add(p.Surcharge)
	}
	return cost
}

func (p ShippingPolicy) metro(state string) bool {
	for _, s := range p.MetroStates {
		if strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}
