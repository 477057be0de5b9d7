package market

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"talon/internal/config"
	"talon/internal/types"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/markcheno/go-talib"
)

const maxKlineLimit = 1500

// BinanceSource serves all three snapshot categories from Binance futures
// REST. Candle statistics feed the price category; the order book feeds
// liquidity; the options-analytics category is estimated from realized
// volatility and positioning ratios (there is no native IV feed here, and the
// estimate is marked as such by the provider).
type BinanceSource struct {
	cfg    config.MarketConfig
	client *futures.Client
}

func NewBinanceSource(cfg config.MarketConfig) *BinanceSource {
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(cfg.RESTBase); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: cfg.CallTimeout()}
	return &BinanceSource{cfg: cfg, client: client}
}

func (s *BinanceSource) fetchCandles(ctx context.Context, symbol string) ([]float64, []float64, []float64, error) {
	limit := s.cfg.CandleLookback
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	kls, err := s.client.NewKlinesService().
		Symbol(cleanSymbol(symbol)).
		Interval(s.cfg.CandleInterval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(kls) <= s.cfg.ATRPeriod {
		return nil, nil, nil, fmt.Errorf("insufficient candle history: got %d", len(kls))
	}
	highs := make([]float64, 0, len(kls))
	lows := make([]float64, 0, len(kls))
	closes := make([]float64, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		highs = append(highs, parseFloat(kl.High))
		lows = append(lows, parseFloat(kl.Low))
		closes = append(closes, parseFloat(kl.Close))
	}
	return highs, lows, closes, nil
}

func (s *BinanceSource) PriceStats(ctx context.Context, symbol string) (types.PriceStats, error) {
	highs, lows, closes, err := s.fetchCandles(ctx, symbol)
	if err != nil {
		return types.PriceStats{}, err
	}
	atrSeries := talib.Atr(highs, lows, closes, s.cfg.ATRPeriod)
	atr := atrSeries[len(atrSeries)-1]
	last := closes[len(closes)-1]
	if last <= 0 {
		return types.PriceStats{}, fmt.Errorf("invalid last price %.4f", last)
	}

	n := len(closes)
	trueRange := math.Max(highs[n-1]-lows[n-1], math.Max(math.Abs(highs[n-1]-closes[n-2]), math.Abs(lows[n-1]-closes[n-2])))
	spike := 0.0
	if atr > 0 {
		spike = trueRange / atr
	}

	return types.PriceStats{
		Last:        last,
		ATR:         atr,
		ATRPercent:  atr / last * 100,
		RealizedVol: annualizedVol(closes, s.cfg.CandleInterval),
		SpikeRatio:  spike,
	}, nil
}

func (s *BinanceSource) Liquidity(ctx context.Context, symbol string) (types.Liquidity, error) {
	depth, err := s.client.NewDepthService().
		Symbol(cleanSymbol(symbol)).
		Limit(20).
		Do(ctx)
	if err != nil {
		return types.Liquidity{}, err
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return types.Liquidity{}, fmt.Errorf("empty order book")
	}
	bestBid := parseFloat(depth.Bids[0].Price)
	bestAsk := parseFloat(depth.Asks[0].Price)
	if bestBid <= 0 || bestAsk <= 0 || bestAsk < bestBid {
		return types.Liquidity{}, fmt.Errorf("crossed or empty book: bid=%.6f ask=%.6f", bestBid, bestAsk)
	}
	mid := (bestBid + bestAsk) / 2
	depthQuote := 0.0
	for _, lvl := range depth.Bids {
		depthQuote += parseFloat(lvl.Price) * parseFloat(lvl.Quantity)
	}
	for _, lvl := range depth.Asks {
		depthQuote += parseFloat(lvl.Price) * parseFloat(lvl.Quantity)
	}

	stats, err := s.client.NewListPriceChangeStatsService().Symbol(cleanSymbol(symbol)).Do(ctx)
	if err != nil {
		return types.Liquidity{}, err
	}
	quoteVolume := 0.0
	for _, st := range stats {
		if st != nil {
			quoteVolume = parseFloat(st.QuoteVolume)
			break
		}
	}

	return types.Liquidity{
		SpreadBps:   (bestAsk - bestBid) / mid * 10000,
		DepthQuote:  depthQuote,
		QuoteVolume: quoteVolume,
	}, nil
}

func (s *BinanceSource) OptionsAnalytics(ctx context.Context, symbol string) (types.OptionsAnalytics, error) {
	_, _, closes, err := s.fetchCandles(ctx, symbol)
	if err != nil {
		return types.OptionsAnalytics{}, err
	}
	rv := annualizedVol(closes, s.cfg.CandleInterval)
	if rv <= 0 {
		return types.OptionsAnalytics{}, fmt.Errorf("unable to estimate volatility")
	}

	// Positioning skew stands in for a put/call ratio on venues without a
	// listed options feed: ratio < 1 means short-skewed accounts.
	points, err := s.client.NewTopLongShortPositionRatioService().
		Symbol(cleanSymbol(symbol)).
		Period("1h").
		Limit(1).
		Do(ctx)
	if err != nil {
		return types.OptionsAnalytics{}, err
	}
	pcr := 1.0
	if len(points) > 0 && points[0] != nil {
		if ratio := parseFloat(points[0].LongShortRatio); ratio > 0 {
			pcr = 1 / ratio
		}
	}

	return types.OptionsAnalytics{
		ImpliedVol:   rv * 1.1, // estimator premium over realized
		IVRank:       ivRank(closes, s.cfg.CandleInterval, rv),
		PutCallRatio: pcr,
	}, nil
}

// annualizedVol computes close-to-close realized volatility annualized by the
// candle interval.
func annualizedVol(closes []float64, interval string) float64 {
	if len(closes) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		rets = append(rets, math.Log(closes[i]/closes[i-1]))
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)

	perYear := float64(365*24) / intervalHours(interval)
	return math.Sqrt(variance) * math.Sqrt(perYear)
}

// ivRank places the current volatility inside the window's min/max band.
func ivRank(closes []float64, interval string, current float64) float64 {
	window := 20
	if len(closes) <= window+2 {
		return 50
	}
	minV, maxV := math.Inf(1), math.Inf(-1)
	for i := window; i < len(closes); i++ {
		v := annualizedVol(closes[i-window:i+1], interval)
		if v <= 0 {
			continue
		}
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	if math.IsInf(minV, 1) || maxV <= minV {
		return 50
	}
	rank := (current - minV) / (maxV - minV) * 100
	return math.Max(0, math.Min(100, rank))
}

func intervalHours(interval string) float64 {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 1
	}
	unit := interval[len(interval)-1]
	num, err := strconv.ParseFloat(interval[:len(interval)-1], 64)
	if err != nil || num <= 0 {
		return 1
	}
	switch unit {
	case 'm':
		return num / 60
	case 'h':
		return num
	case 'd':
		return num * 24
	case 'w':
		return num * 24 * 7
	default:
		return 1
	}
}

func cleanSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
