package market

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// callBudget enforces the per-provider per-minute and per-day call caps. When
// a cap is spent the caller marks the category unavailable immediately; there
// is no queueing or inline retry.
type callBudget struct {
	minute *rate.Limiter

	mu       sync.Mutex
	day      time.Time
	dayCount int
	dayCap   int
	nowFn    func() time.Time
}

func newCallBudget(perMinute, perDay int) *callBudget {
	return &callBudget{
		minute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		dayCap: perDay,
		nowFn:  time.Now,
	}
}

// take consumes one call from both windows, or reports which budget is spent.
func (b *callBudget) take() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFn().UTC()
	today := now.Truncate(24 * time.Hour)
	if !b.day.Equal(today) {
		b.day = today
		b.dayCount = 0
	}
	if b.dayCount >= b.dayCap {
		return fmt.Errorf("daily call budget exhausted (%d)", b.dayCap)
	}
	if !b.minute.Allow() {
		return fmt.Errorf("per-minute call budget exhausted")
	}
	b.dayCount++
	return nil
}
