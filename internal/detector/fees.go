package detector

import "github.com/alanyoungcy/crossarb/internal/domain"

// StaticFeeModel estimates round-trip cost from fixed per-venue fee rates,
// a flat network fee for on-chain legs, and an expected-slippage rate.
// It implements domain.FeeModel and is the default when no venue-pair
// specific model is configured.
type StaticFeeModel struct {
	// VenueRate is the taker fee per venue as a fraction of notional.
	VenueRate map[domain.Venue]float64
	// NetworkFee is a flat per-unit cost added for every round trip,
	// covering gas and settlement.
	NetworkFee float64
	// SlippageRate is the expected execution slippage as a fraction of
	// the mid of the two prices.
	SlippageRate float64
}

// Estimate returns the expected per-unit cost of buying at buyPrice on
// buyVenue and selling at sellPrice on sellVenue.
func (m StaticFeeModel) Estimate(buyVenue, sellVenue domain.Venue, buyPrice, sellPrice float64) float64 {
	cost := buyPrice*m.VenueRate[buyVenue] + sellPrice*m.VenueRate[sellVenue]
	cost += m.NetworkFee
	cost += m.SlippageRate * (buyPrice + sellPrice) / 2
	return cost
}

var _ domain.FeeModel = StaticFeeModel{}
