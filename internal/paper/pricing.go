package paper

import (
	"math"

	"talon/internal/types"
)

// blackScholes prices a European option and returns its Greeks. Theta is per
// calendar day, vega per volatility point. t is time to expiry in years.
func blackScholes(opt types.OptionType, spot, strike, t, sigma, r float64) (price float64, greeks types.Greeks) {
	if spot <= 0 || strike <= 0 || sigma <= 0 || t <= 0 {
		return 0, types.Greeks{}
	}
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+sigma*sigma/2)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	nd1 := normCDF(d1)
	nd2 := normCDF(d2)
	pdf := normPDF(d1)
	discount := math.Exp(-r * t)

	gamma := pdf / (spot * sigma * sqrtT)
	vega := spot * pdf * sqrtT / 100

	if opt == types.OptionCall {
		price = spot*nd1 - strike*discount*nd2
		greeks.Delta = nd1
		greeks.Theta = (-spot*pdf*sigma/(2*sqrtT) - r*strike*discount*nd2) / 365
	} else {
		price = strike*discount*(1-nd2) - spot*(1-nd1)
		greeks.Delta = nd1 - 1
		greeks.Theta = (-spot*pdf*sigma/(2*sqrtT) + r*strike*discount*(1-nd2)) / 365
	}
	greeks.Gamma = gamma
	greeks.Vega = vega
	return price, greeks
}

// PricingModel revalues open contracts for the exit sweep.
type PricingModel struct {
	RiskFreeRate float64
}

// Reprice values an existing position's contract at new market conditions.
func (m PricingModel) Reprice(rec *types.ExecutionRecord, spot, sigma, yearsToExpiry float64) float64 {
	price, _ := blackScholes(rec.OptionType, spot, rec.Strike, yearsToExpiry, sigma, m.RiskFreeRate)
	return price
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
