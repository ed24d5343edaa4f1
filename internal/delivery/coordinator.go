// Package delivery merges stem deliveries from the generation provider's
// progressive separation and the Demucs endpoint into one project outcome.
// Both providers race; the coordinator keeps whichever copy of a stem type
// arrives first and ignores the losing provider's copies entirely.
package delivery

import (
	"context"
	"log"
	"sync"

	"github.com/layertune/api/internal/model"
)

// Sink receives the coordinator's decisions. Implemented by the studio
// service on top of the project store and the WebSocket hub.
type Sink interface {
	// SwapCoreLayers atomically replaces the full-mix preview layer with one
	// layer per delivered core stem.
	SwapCoreLayers(ctx context.Context, stems []model.CachedStem)
	// AddCoreLayer appends a single layer for a core stem that arrived after
	// the swap already fired.
	AddCoreLayer(ctx context.Context, stem model.CachedStem)
	// CacheStem files a stem for later claiming via add-layer.
	CacheStem(ctx context.Context, stem model.CachedStem)
	// DegradedNotice reports that every provider settled without delivering a
	// single stem; the preview layer stays and the track remains playable.
	DegradedNotice(ctx context.Context)
}

// Coordinator tracks one generation's stem deliveries. It is a latch: the
// core-layer swap fires at most once, when the last required stem type
// arrives or when all providers have settled with a partial set.
type Coordinator struct {
	mu        sync.Mutex
	projectID string
	core      map[model.StemType]bool
	coreOrder []model.StemType
	seen      map[model.StemType]bool
	pending   map[model.StemType]model.CachedStem
	swapped   bool
	delivered int
	settled   int
	providers int
	sink      Sink
}

// NewCoordinator creates a coordinator expecting deliveries from the given
// number of providers for one project.
func NewCoordinator(projectID string, coreStems []model.StemType, providers int, sink Sink) *Coordinator {
	core := make(map[model.StemType]bool, len(coreStems))
	for _, t := range coreStems {
		core[t] = true
	}
	return &Coordinator{
		projectID: projectID,
		core:      core,
		coreOrder: append([]model.StemType(nil), coreStems...),
		seen:      make(map[model.StemType]bool),
		pending:   make(map[model.StemType]model.CachedStem),
		providers: providers,
		sink:      sink,
	}
}

// Deliver hands one stem to the coordinator. The first copy of each stem type
// wins; the losing provider's duplicate is ignored outright. A first-time
// core type is buffered toward the swap, or appended directly as a layer when
// it lands after the swap already fired. First-time non-core types go to the
// cache. Stems without an audio reference are dropped. Returns true when the
// stem counted toward a core layer.
func (c *Coordinator) Deliver(ctx context.Context, stem model.CachedStem) bool {
	if stem.AudioURL == "" {
		log.Printf("[Delivery] dropping %s stem without audio reference (clip %s)", stem.StemType, stem.ClipID)
		return false
	}

	c.mu.Lock()
	if c.seen[stem.StemType] {
		c.mu.Unlock()
		log.Printf("[Delivery] ignoring duplicate %s stem (clip %s)", stem.StemType, stem.ClipID)
		return false
	}
	c.seen[stem.StemType] = true
	c.delivered++

	isCore := c.core[stem.StemType]
	lateCore := isCore && c.swapped
	var swap []model.CachedStem
	if isCore && !c.swapped {
		c.pending[stem.StemType] = stem
		if len(c.pending) == len(c.core) {
			swap = c.takeSwapLocked()
		}
	}
	c.mu.Unlock()

	switch {
	case lateCore:
		c.sink.AddCoreLayer(ctx, stem)
	case !isCore:
		c.sink.CacheStem(ctx, stem)
	case swap != nil:
		c.sink.SwapCoreLayers(ctx, swap)
	}
	return isCore
}

// ProviderDone marks one provider as settled. When the last provider settles
// before the core set completed, the swap fires with whatever core stems did
// arrive; if nothing at all was delivered, the degraded notice goes out
// instead.
func (c *Coordinator) ProviderDone(ctx context.Context) {
	c.mu.Lock()
	c.settled++
	last := c.settled == c.providers

	var swap []model.CachedStem
	degraded := false
	if last && !c.swapped {
		if len(c.pending) > 0 {
			swap = c.takeSwapLocked()
		} else if c.delivered == 0 {
			degraded = true
		}
	}
	c.mu.Unlock()

	if swap != nil {
		c.sink.SwapCoreLayers(ctx, swap)
	}
	if degraded {
		log.Printf("[Delivery] all providers settled with zero stems for project %s", c.projectID)
		c.sink.DegradedNotice(ctx)
	}
}

// takeSwapLocked flips the latch and drains the buffered core stems in the
// configured core order.
func (c *Coordinator) takeSwapLocked() []model.CachedStem {
	c.swapped = true
	out := make([]model.CachedStem, 0, len(c.pending))
	for _, t := range c.coreOrder {
		if s, ok := c.pending[t]; ok {
			out = append(out, s)
		}
	}
	return out
}
