// Package project holds the composition state for one project and its
// persistence. The Project aggregate is copy-on-write: every mutation funnels
// through one mutex-serialized apply step that derives a new value from the
// previous one, so concurrent pipeline goroutines and request handlers never
// observe a half-written state.
package project

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/layertune/api/internal/model"
)

// Store owns the live state of a single project.
type Store struct {
	mu      sync.Mutex
	repo    Repository
	current model.Project
}

// Open loads the project from the repository, reconciling any state left over
// from a previous process, or creates a fresh one when no snapshot exists.
func Open(ctx context.Context, repo Repository, projectID string) (*Store, error) {
	p, found, err := repo.Load(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", projectID, err)
	}
	if !found {
		p = model.NewProject(projectID)
		if err := repo.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to create project %s: %w", projectID, err)
		}
		return &Store{repo: repo, current: p}, nil
	}

	p, changed := Reconcile(p)
	if changed {
		if err := repo.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to save reconciled project %s: %w", projectID, err)
		}
	}
	return &Store{repo: repo, current: p}, nil
}

// Get returns a snapshot of the current state.
func (s *Store) Get() model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Update derives the next state from the current one and persists it. fn
// receives its own copy and must return the full replacement value. All
// mutations go through here; the lock makes read-modify-write atomic.
func (s *Store) Update(ctx context.Context, fn func(model.Project) model.Project) model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ctx, fn)
}

func (s *Store) applyLocked(ctx context.Context, fn func(model.Project) model.Project) model.Project {
	next := fn(s.current.Clone())
	next.UpdatedAt = time.Now()
	s.current = next
	// the in-memory value stays authoritative on a persistence failure
	if err := s.repo.Save(ctx, next); err != nil {
		log.Printf("[Store] failed to persist project %s: %v", next.ID, err)
	}
	return next.Clone()
}

// AddLayer appends a layer at the next mixer position.
func (s *Store) AddLayer(ctx context.Context, layer model.Layer) model.Project {
	return s.Update(ctx, func(p model.Project) model.Project {
		layer.ProjectID = p.ID
		layer.Position = len(p.Layers)
		if layer.CreatedAt.IsZero() {
			layer.CreatedAt = time.Now()
		}
		p.Layers = append(p.Layers, layer)
		return p
	})
}

// UpdateLayer rewrites one layer in place. Returns false when the layer no
// longer exists, in which case nothing is written.
func (s *Store) UpdateLayer(ctx context.Context, layerID string, fn func(model.Layer) model.Layer) (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.current.Layer(layerID); !ok {
		return s.current.Clone(), false
	}
	next := s.applyLocked(ctx, func(p model.Project) model.Project {
		for i, l := range p.Layers {
			if l.ID == layerID {
				p.Layers[i] = fn(l)
				break
			}
		}
		return p
	})
	return next, true
}

// RemoveLayer deletes a layer and compacts mixer positions.
func (s *Store) RemoveLayer(ctx context.Context, layerID string) (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.current.Layer(layerID); !ok {
		return s.current.Clone(), false
	}
	next := s.applyLocked(ctx, func(p model.Project) model.Project {
		layers := p.Layers[:0]
		for _, l := range p.Layers {
			if l.ID != layerID {
				l.Position = len(layers)
				layers = append(layers, l)
			}
		}
		p.Layers = layers
		delete(p.ABState, layerID)
		return p
	})
	return next, true
}

// AppendStemCache adds a delivered stem to the cache. Append-only; claiming a
// stem goes through ConsumeCachedStem.
func (s *Store) AppendStemCache(ctx context.Context, stem model.CachedStem) model.Project {
	return s.Update(ctx, func(p model.Project) model.Project {
		if stem.CreatedAt.IsZero() {
			stem.CreatedAt = time.Now()
		}
		p.StemCache = append(p.StemCache, stem)
		return p
	})
}

// ConsumeCachedStem atomically claims the first cached stem of the given type
// that carries a usable audio reference. Two concurrent consumers of the same
// type get distinct entries or a miss, never the same one.
func (s *Store) ConsumeCachedStem(ctx context.Context, stemType model.StemType) (model.CachedStem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, cs := range s.current.StemCache {
		if cs.StemType == stemType && cs.AudioURL != "" {
			idx = i
			break
		}
	}
	if idx == -1 {
		return model.CachedStem{}, false
	}

	claimed := s.current.StemCache[idx]
	s.applyLocked(ctx, func(p model.Project) model.Project {
		p.StemCache = append(p.StemCache[:idx:idx], p.StemCache[idx+1:]...)
		return p
	})
	return claimed, true
}

// PushVersion prepends a snapshot to the layer's version history.
func (s *Store) PushVersion(ctx context.Context, layerID string, v model.LayerVersion) (model.Project, bool) {
	return s.UpdateLayer(ctx, layerID, func(l model.Layer) model.Layer {
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now()
		}
		l.Versions = append([]model.LayerVersion{v}, l.Versions...)
		return l
	})
}

// SwitchToVersion swaps the layer's live audio with the version at index. The
// displaced live audio takes the version's slot, so switching to the same
// index twice restores the original state.
func (s *Store) SwitchToVersion(ctx context.Context, layerID string, index int) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	layer, ok := s.current.Layer(layerID)
	if !ok {
		return s.current.Clone(), fmt.Errorf("layer %s not found", layerID)
	}
	if index < 0 || index >= len(layer.Versions) {
		return s.current.Clone(), fmt.Errorf("version index %d out of range (layer has %d versions)", index, len(layer.Versions))
	}

	next := s.applyLocked(ctx, func(p model.Project) model.Project {
		for i, l := range p.Layers {
			if l.ID != layerID {
				continue
			}
			displaced := model.LayerVersion{
				AudioURL:  l.AudioURL,
				ClipID:    l.ClipID,
				Prompt:    l.Prompt,
				CreatedAt: time.Now(),
			}
			v := l.Versions[index]
			l.AudioURL = v.AudioURL
			l.ClipID = v.ClipID
			l.Prompt = v.Prompt
			l.Versions[index] = displaced
			l.VersionCursor = index
			p.Layers[i] = l
		}
		return p
	})
	return next, nil
}

// KeepA resolves an A/B comparison in favor of the previous audio. The
// rejected take stays in the version history; regeneration pushed the old
// snapshot to the head of the history, so restoring is a swap with slot zero.
func (s *Store) KeepA(ctx context.Context, layerID string) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	layer, ok := s.current.Layer(layerID)
	if !ok {
		return s.current.Clone(), fmt.Errorf("layer %s not found", layerID)
	}
	if s.current.ABState[layerID] != model.ABComparing {
		return s.current.Clone(), fmt.Errorf("layer %s is not in comparison", layerID)
	}
	if len(layer.Versions) == 0 {
		return s.current.Clone(), fmt.Errorf("layer %s has no version to restore", layerID)
	}

	next := s.applyLocked(ctx, func(p model.Project) model.Project {
		for i, l := range p.Layers {
			if l.ID != layerID {
				continue
			}
			rejected := model.LayerVersion{
				AudioURL:  l.AudioURL,
				ClipID:    l.ClipID,
				Prompt:    l.Prompt,
				CreatedAt: time.Now(),
			}
			prev := l.Versions[0]
			l.AudioURL = prev.AudioURL
			l.ClipID = prev.ClipID
			l.Prompt = prev.Prompt
			l.Versions[0] = rejected
			l.PreviousAudioURL = ""
			p.Layers[i] = l
		}
		delete(p.ABState, layerID)
		return p
	})
	return next, nil
}

// KeepB resolves an A/B comparison in favor of the new audio. The old take was
// already pushed to history when the regeneration landed.
func (s *Store) KeepB(ctx context.Context, layerID string) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.current.Layer(layerID); !ok {
		return s.current.Clone(), fmt.Errorf("layer %s not found", layerID)
	}
	if s.current.ABState[layerID] != model.ABComparing {
		return s.current.Clone(), fmt.Errorf("layer %s is not in comparison", layerID)
	}

	next := s.applyLocked(ctx, func(p model.Project) model.Project {
		for i, l := range p.Layers {
			if l.ID == layerID {
				l.PreviousAudioURL = ""
				p.Layers[i] = l
			}
		}
		delete(p.ABState, layerID)
		return p
	})
	return next, nil
}

// SetLyrics replaces the project lyrics.
func (s *Store) SetLyrics(ctx context.Context, lyrics string) model.Project {
	return s.Update(ctx, func(p model.Project) model.Project {
		p.Lyrics = lyrics
		return p
	})
}
