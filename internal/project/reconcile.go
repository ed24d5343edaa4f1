package project

import (
	"log"

	"github.com/layertune/api/internal/model"
)

// Reconcile repairs a snapshot written by a previous process. In-flight work
// is not durable: a layer that was still waiting on a generation when the
// process died is a placeholder that can never resolve, so it is pruned, and
// any stale generation status on a layer that does have audio is cleared.
// Returns the repaired project and whether anything changed.
func Reconcile(p model.Project) (model.Project, bool) {
	changed := false
	out := p.Clone()

	layers := out.Layers[:0]
	for _, l := range out.Layers {
		if l.AudioURL == "" {
			log.Printf("[Reconcile] pruning dead placeholder layer %s (%s)", l.ID, l.StemType)
			delete(out.ABState, l.ID)
			changed = true
			continue
		}
		if l.GenerationStatus != model.GenerationNone {
			l.GenerationStatus = model.GenerationNone
			changed = true
		}
		l.Position = len(layers)
		layers = append(layers, l)
	}
	out.Layers = layers

	cache := out.StemCache[:0]
	for _, cs := range out.StemCache {
		if cs.AudioURL == "" {
			changed = true
			continue
		}
		cache = append(cache, cs)
	}
	out.StemCache = cache

	// a comparison whose layer is gone can never be resolved
	for id := range out.ABState {
		if _, ok := out.Layer(id); !ok {
			delete(out.ABState, id)
			changed = true
		}
	}

	return out, changed
}
