package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layertune/api/internal/client"
	"github.com/layertune/api/internal/config"
	"github.com/layertune/api/internal/model"
	"github.com/layertune/api/internal/poller"
	"github.com/layertune/api/internal/project"
	"github.com/layertune/api/internal/stems"
	ws "github.com/layertune/api/internal/websocket"
)

const defaultLayerVolume = 0.8

// StudioService orchestrates generation, separation, and layer commands for
// projects. Every command returns quickly; the slow provider work runs in
// background goroutines that report through the WebSocket hub and land their
// results in the project store.
type StudioService struct {
	suno   client.MusicGenerator
	demucs client.StemSeparator // nil when the endpoint is not configured
	repo   project.Repository
	hub    *ws.Hub

	coreStems []model.StemType
	clipOpts  poller.Options
	stemOpts  poller.Options

	mu     sync.Mutex
	stores map[string]*project.Store
}

func NewStudioService(suno client.MusicGenerator, demucs client.StemSeparator, repo project.Repository, hub *ws.Hub, cfg *config.Config) *StudioService {
	return &StudioService{
		suno:      suno,
		demucs:    demucs,
		repo:      repo,
		hub:       hub,
		coreStems: coreStemsFromConfig(cfg.Stems.Core),
		clipOpts: poller.Options{
			Interval: time.Duration(cfg.Poll.ClipInterval) * time.Second,
			Timeout:  time.Duration(cfg.Poll.GenerateTimeout) * time.Second,
		},
		stemOpts: poller.Options{
			Interval: time.Duration(cfg.Poll.StemInterval) * time.Second,
			Timeout:  time.Duration(cfg.Poll.SeparateTimeout) * time.Second,
		},
		stores: make(map[string]*project.Store),
	}
}

func coreStemsFromConfig(names []string) []model.StemType {
	out := make([]model.StemType, 0, len(names))
	for _, n := range names {
		t := model.StemType(n)
		if model.IsValidStemType(t) {
			out = append(out, t)
		} else {
			log.Printf("[Studio] ignoring unknown core stem type %q", n)
		}
	}
	if len(out) == 0 {
		return model.DefaultCoreStems
	}
	return out
}

// store returns the live store for a project, opening it on first use.
func (s *StudioService) store(ctx context.Context, projectID string) (*project.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stores[projectID]; ok {
		return st, nil
	}
	st, err := project.Open(ctx, s.repo, projectID)
	if err != nil {
		return nil, err
	}
	s.stores[projectID] = st
	return st, nil
}

// GetState returns a snapshot of the project.
func (s *StudioService) GetState(ctx context.Context, projectID string) (model.Project, error) {
	st, err := s.store(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	return st.Get(), nil
}

// AddLayer adds a stem layer. A matching cached stem is claimed immediately;
// otherwise a cover of the original track is generated and separated in the
// background while a placeholder layer holds the mixer slot.
func (s *StudioService) AddLayer(ctx context.Context, req *model.AddLayerRequest) (*model.StatusMessageResponse, error) {
	if !model.IsValidStemType(req.StemType) {
		return nil, fmt.Errorf("unknown stem type %q", req.StemType)
	}
	st, err := s.store(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	display := stems.DisplayName(req.StemType)

	if cached, ok := st.ConsumeCachedStem(ctx, req.StemType); ok {
		p := st.AddLayer(ctx, model.Layer{
			ID:       uuid.New().String(),
			Name:     display,
			StemType: cached.StemType,
			AudioURL: cached.AudioURL,
			ClipID:   cached.ClipID,
			Volume:   defaultLayerVolume,
		})
		s.hub.BroadcastLayers(p.ID, p.Layers)
		s.hub.BroadcastStem(p.ID, cached.StemType, true)
		return &model.StatusMessageResponse{
			Message: fmt.Sprintf("Added a %s layer from the stem library. %s", display, remainingCachedMessage(p)),
		}, nil
	}

	p := st.Get()
	if p.OriginalClipID == "" {
		return nil, fmt.Errorf("no source track to derive a %s stem from; generate a track first", display)
	}

	layerID := uuid.New().String()
	next := st.AddLayer(ctx, model.Layer{
		ID:               layerID,
		Name:             display,
		StemType:         req.StemType,
		Prompt:           req.Tags,
		Volume:           defaultLayerVolume,
		GenerationStatus: model.GenerationGenerating,
	})
	s.hub.BroadcastLayers(next.ID, next.Layers)

	go s.runLayerGeneration(context.Background(), st, layerID, req.StemType, req.Tags, p.OriginalClipID, false)

	return &model.StatusMessageResponse{
		Message: fmt.Sprintf("Generating a new %s layer in the background. This can take a few minutes; the layer will appear when ready.", display),
	}, nil
}

// RegenerateLayer produces a new take of an existing layer. The old audio
// stays live until the new take lands, then the two sit side by side for an
// A/B comparison resolved by KeepA or KeepB.
func (s *StudioService) RegenerateLayer(ctx context.Context, layerID string, req *model.RegenerateLayerRequest) (*model.StatusMessageResponse, error) {
	st, err := s.store(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	p := st.Get()
	layer, ok := p.Layer(layerID)
	if !ok {
		return nil, fmt.Errorf("layer %s not found", layerID)
	}
	if layer.AudioURL == "" {
		return nil, fmt.Errorf("layer %s has no audio to regenerate yet", layerID)
	}
	if p.ABState[layerID] == model.ABComparing {
		return nil, fmt.Errorf("layer %s has an unresolved comparison; keep take A or B first", layerID)
	}
	if p.OriginalClipID == "" {
		return nil, fmt.Errorf("no source track to regenerate from")
	}

	st.UpdateLayer(ctx, layerID, func(l model.Layer) model.Layer {
		l.GenerationStatus = model.GenerationGenerating
		return l
	})
	s.hub.BroadcastLayers(p.ID, st.Get().Layers)

	go s.runLayerGeneration(context.Background(), st, layerID, layer.StemType, req.Description, p.OriginalClipID, true)

	display := stems.DisplayName(layer.StemType)
	return &model.StatusMessageResponse{
		Message: fmt.Sprintf("Regenerating the %s layer. The current take keeps playing; you'll compare old and new when the replacement is ready.", display),
	}, nil
}

// KeepA resolves a comparison in favor of the previous take.
func (s *StudioService) KeepA(ctx context.Context, projectID, layerID string) (*model.StatusMessageResponse, error) {
	st, err := s.store(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p, err := st.KeepA(ctx, layerID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastLayers(p.ID, p.Layers)
	return &model.StatusMessageResponse{Message: "Kept the original take. The new take stays in the version history."}, nil
}

// KeepB resolves a comparison in favor of the new take.
func (s *StudioService) KeepB(ctx context.Context, projectID, layerID string) (*model.StatusMessageResponse, error) {
	st, err := s.store(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p, err := st.KeepB(ctx, layerID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastLayers(p.ID, p.Layers)
	return &model.StatusMessageResponse{Message: "Kept the new take. The original stays in the version history."}, nil
}

// SwitchVersion swaps a layer's live audio with an entry of its history.
func (s *StudioService) SwitchVersion(ctx context.Context, projectID, layerID string, index int) (*model.StatusMessageResponse, error) {
	st, err := s.store(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p, err := st.SwitchToVersion(ctx, layerID, index)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastLayers(p.ID, p.Layers)
	return &model.StatusMessageResponse{Message: fmt.Sprintf("Switched to version %d. Switch again to go back.", index)}, nil
}

// RemoveLayer deletes a layer from the mix.
func (s *StudioService) RemoveLayer(ctx context.Context, projectID, layerID string) (*model.StatusMessageResponse, error) {
	st, err := s.store(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p := st.Get()
	layer, ok := p.Layer(layerID)
	if !ok {
		return nil, fmt.Errorf("layer %s not found", layerID)
	}
	next, _ := st.RemoveLayer(ctx, layerID)
	s.hub.BroadcastLayers(next.ID, next.Layers)
	return &model.StatusMessageResponse{Message: fmt.Sprintf("Removed the %s layer.", layer.Name)}, nil
}

// SetLyrics replaces the project lyrics text.
func (s *StudioService) SetLyrics(ctx context.Context, req *model.SetLyricsRequest) (*model.StatusMessageResponse, error) {
	st, err := s.store(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	st.SetLyrics(ctx, req.Lyrics)
	return &model.StatusMessageResponse{Message: "Lyrics updated."}, nil
}

// CompositionSummary renders the project state as a status string for the
// chat agent, which has no other view of the composition.
func (s *StudioService) CompositionSummary(ctx context.Context, projectID string) (*model.StatusMessageResponse, error) {
	p, err := s.GetState(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project %q", p.Title)
	if p.VibePrompt != "" {
		fmt.Fprintf(&b, " (%s)", p.VibePrompt)
	}
	if len(p.Layers) == 0 {
		b.WriteString(". No layers yet; generate a track to get started.")
		return &model.StatusMessageResponse{Message: b.String()}, nil
	}

	fmt.Fprintf(&b, " with %d layers: ", len(p.Layers))
	parts := make([]string, 0, len(p.Layers))
	for _, l := range p.Layers {
		desc := l.Name
		switch {
		case l.GenerationStatus != model.GenerationNone:
			desc += fmt.Sprintf(" (%s)", l.GenerationStatus)
		case p.ABState[l.ID] == model.ABComparing:
			desc += " (comparing A/B)"
		case l.IsMuted:
			desc += " (muted)"
		}
		if n := len(l.Versions); n > 0 {
			desc += fmt.Sprintf(" [%d alternate versions]", n)
		}
		parts = append(parts, desc)
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(". ")
	b.WriteString(remainingCachedMessage(p))
	return &model.StatusMessageResponse{Message: b.String()}, nil
}

// remainingCachedMessage names the stem types still claimable from the cache.
func remainingCachedMessage(p model.Project) string {
	types := p.CachedStemTypes()
	if len(types) == 0 {
		return "No cached stems remain."
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return fmt.Sprintf("Cached stems available: %s.", strings.Join(names, ", "))
}
