package contextstore

import (
	"strings"
	"sync"
	"time"

	"talon/internal/config"
	"talon/internal/logger"
	"talon/internal/types"
)

// Store accumulates per-instrument context fragments and answers whether
// enough fresh data exists to attempt a decision.
//
// Concurrency contract: Update serializes per instrument. Concurrent updates
// from distinct sources converge to some serial ordering; Build observes a
// consistent snapshot as of one serialization point, never a torn state.
type Store struct {
	rule  config.ContextConfig
	nowFn func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu          sync.Mutex
	fragments   map[types.SourceTag]types.ContextFragment
	lastUpdated map[types.SourceTag]time.Time
}

func New(rule config.ContextConfig) *Store {
	return &Store{
		rule:    rule,
		nowFn:   time.Now,
		entries: make(map[string]*entry),
	}
}

// SetNowFunc overrides the clock. Test hook.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) entryFor(symbol string) *entry {
	s.mu.RLock()
	e, ok := s.entries[symbol]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[symbol]; ok {
		return e
	}
	e = &entry{
		fragments:   make(map[types.SourceTag]types.ContextFragment),
		lastUpdated: make(map[types.SourceTag]time.Time),
	}
	s.entries[symbol] = e
	return e
}

// Update merges the fragment into the per-instrument aggregate and stamps its
// source's last-update time. A duplicate update from the same source simply
// overwrites the previous value. A malformed fragment is rejected whole.
func (s *Store) Update(frag types.ContextFragment) error {
	if err := frag.Validate(); err != nil {
		return err
	}
	symbol := normalizeSymbol(frag.Symbol)
	e := s.entryFor(symbol)

	e.mu.Lock()
	e.fragments[frag.Source] = frag
	e.lastUpdated[frag.Source] = frag.ReceivedAt
	e.mu.Unlock()

	logger.Debugf("contextstore: merged symbol=%s source=%s at=%s",
		symbol, frag.Source, frag.ReceivedAt.Format(time.RFC3339))
	return nil
}

// Build returns a complete decision context, or a NotReady result naming the
// required sources that are missing or stale. Stale sources are excluded from
// completeness as if they had never arrived; their values stay cached until
// overwritten or swept.
func (s *Store) Build(symbol string) (*types.DecisionContext, *types.NotReady) {
	symbol = normalizeSymbol(symbol)
	now := s.nowFn()
	window := s.rule.FreshnessWindow()

	e := s.entryFor(symbol)
	e.mu.Lock()
	fragments := make(map[types.SourceTag]types.ContextFragment, len(e.fragments))
	lastUpdated := make(map[types.SourceTag]time.Time, len(e.lastUpdated))
	for src, f := range e.fragments {
		fragments[src] = f
		lastUpdated[src] = e.lastUpdated[src]
	}
	e.mu.Unlock()

	fresh := func(src types.SourceTag) (present, isFresh bool) {
		ts, ok := lastUpdated[src]
		if !ok {
			return false, false
		}
		return true, now.Sub(ts) <= window
	}

	nr := &types.NotReady{Symbol: symbol, AsOf: now}
	for _, raw := range s.rule.RequiredSources {
		src, _ := types.ParseSourceTag(raw)
		present, isFresh := fresh(src)
		switch {
		case !present:
			nr.Missing = append(nr.Missing, string(src))
		case !isFresh:
			nr.Stale = append(nr.Stale, string(src))
		}
	}
	if len(s.rule.AlternateSources) > 0 {
		anyAlt := false
		for _, raw := range s.rule.AlternateSources {
			src, _ := types.ParseSourceTag(raw)
			if present, isFresh := fresh(src); present && isFresh {
				anyAlt = true
				break
			}
		}
		if !anyAlt {
			nr.Missing = append(nr.Missing, strings.Join(s.rule.AlternateSources, "|"))
		}
	}
	if len(nr.Missing) > 0 || len(nr.Stale) > 0 {
		return nil, nr
	}

	// Drop stale optional/alternate values from the returned context so the
	// engine never scores expired data.
	for src, ts := range lastUpdated {
		if now.Sub(ts) > window {
			delete(fragments, src)
			delete(lastUpdated, src)
		}
	}

	return &types.DecisionContext{
		Symbol:      symbol,
		Fragments:   fragments,
		LastUpdated: lastUpdated,
		BuiltAt:     now,
	}, nil
}

// Sweep drops fragments older than the freshness window from the cache.
// Completeness never depends on it; it only bounds memory.
func (s *Store) Sweep() int {
	now := s.nowFn()
	window := s.rule.FreshnessWindow()
	removed := 0

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		for src, ts := range e.lastUpdated {
			if now.Sub(ts) > window {
				delete(e.fragments, src)
				delete(e.lastUpdated, src)
				removed++
			}
		}
		e.mu.Unlock()
	}
	return removed
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
