package exits

import (
	"math"

	"talon/internal/types"
)

const contractMultiplier = 100

// AttributionTolerance bounds |delta+iv+theta+gamma - gross| in sanity
// checks.
const AttributionTolerance = 1e-6

// attribute decomposes gross P&L into Greek-driven components. The delta,
// gamma and theta legs come from the entry Greeks via a Taylor expansion; the
// IV leg takes the exact residual, so the four components always sum to
// gross. All unexplained P&L (vol change plus higher-order terms) is booked
// to the volatility leg.
func attribute(rec *types.ExecutionRecord, gross, underlyingExit, daysHeld float64) types.Attribution {
	mult := float64(rec.FilledContracts) * contractMultiplier
	dS := underlyingExit - rec.UnderlyingEntry

	delta := roundPnL(rec.Greeks.Delta * dS * mult)
	gamma := roundPnL(0.5 * rec.Greeks.Gamma * dS * dS * mult)
	theta := roundPnL(rec.Greeks.Theta * daysHeld * mult)
	iv := gross - delta - gamma - theta

	return types.Attribution{Delta: delta, Gamma: gamma, Theta: theta, IV: iv}
}

func roundPnL(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
