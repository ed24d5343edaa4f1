package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layertune/api/internal/client"
	"github.com/layertune/api/internal/delivery"
	"github.com/layertune/api/internal/model"
	"github.com/layertune/api/internal/poller"
	"github.com/layertune/api/internal/project"
	"github.com/layertune/api/internal/stems"
)

// GenerateTrack submits a full-track generation and fires the rest of the
// pipeline (polling, dual-provider separation, preview swap) in the
// background. The submit itself is synchronous so a rejected request fails
// the caller directly.
func (s *StudioService) GenerateTrack(ctx context.Context, req *model.GenerateTrackRequest) (*model.GenerateTrackResponse, error) {
	genReq := &client.GenerateTrackRequest{
		Topic:            req.Topic,
		Tags:             req.Tags,
		MakeInstrumental: req.Instrumental,
		NegativeTags:     req.NegativeTags,
	}
	if req.Lyrics != "" {
		genReq.Prompt = req.Lyrics
	}

	resp, err := s.suno.GenerateTrack(ctx, genReq)
	if err != nil {
		return nil, err
	}
	clipIDs := make([]string, 0, len(resp.Clips))
	for _, c := range resp.Clips {
		clipIDs = append(clipIDs, c.ID)
	}
	if len(clipIDs) == 0 {
		return nil, fmt.Errorf("generation accepted but returned no clips")
	}

	projectID := uuid.New().String()
	st, err := s.store(ctx, projectID)
	if err != nil {
		return nil, err
	}
	st.Update(ctx, func(p model.Project) model.Project {
		if req.Topic != "" {
			p.Title = req.Topic
		}
		p.VibePrompt = req.Tags
		p.Lyrics = req.Lyrics
		return p
	})

	go s.runGenerationPipeline(context.Background(), st, clipIDs)

	return &model.GenerateTrackResponse{
		ProjectID: projectID,
		ClipIDs:   clipIDs,
		Status:    "generating",
	}, nil
}

// runGenerationPipeline carries a submitted generation through to a layered
// project: wait for the track, install the full-mix preview, then race both
// separation providers through the delivery coordinator.
func (s *StudioService) runGenerationPipeline(ctx context.Context, st *project.Store, clipIDs []string) {
	projectID := st.Get().ID
	s.hub.BroadcastPhase(projectID, model.PhaseGenerating, "")

	clips, err := poller.WaitForClips(ctx, s.suno.GetClips, clipIDs, s.clipOpts)
	if err != nil {
		log.Printf("[Studio] generation failed for project %s: %v", projectID, err)
		s.hub.BroadcastError(projectID, "GENERATION_ERROR", err.Error())
		s.hub.BroadcastPhase(projectID, model.PhaseError, err.Error())
		return
	}

	var track model.Clip
	for _, c := range clips {
		if c.AudioURL != "" {
			track = c
			break
		}
	}
	if track.ID == "" {
		msg := "generation completed without a playable clip"
		s.hub.BroadcastError(projectID, "GENERATION_ERROR", msg)
		s.hub.BroadcastPhase(projectID, model.PhaseError, msg)
		return
	}

	p := st.Update(ctx, func(p model.Project) model.Project {
		p.OriginalClipID = track.ID
		if track.Title != "" {
			p.Title = track.Title
		}
		return p
	})
	st.AddLayer(ctx, model.Layer{
		ID:        uuid.New().String(),
		Name:      "Full Mix",
		AudioURL:  track.AudioURL,
		ClipID:    track.ID,
		Volume:    defaultLayerVolume,
		IsPreview: true,
	})
	s.hub.BroadcastLayers(projectID, st.Get().Layers)
	s.hub.BroadcastPhase(projectID, model.PhaseSeparating, "")

	providers := 1
	if s.demucs != nil {
		providers = 2
	}
	sink := &projectSink{svc: s, st: st, projectID: projectID}
	coord := delivery.NewCoordinator(projectID, s.coreStems, providers, sink)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runSunoSeparation(ctx, coord, track)
	}()
	if s.demucs != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runDemucsSeparation(ctx, coord, track, projectID)
		}()
	}
	wg.Wait()

	s.hub.BroadcastPhase(projectID, model.PhaseComplete, "")
	log.Printf("[Studio] pipeline finished for project %s (%s)", projectID, p.Title)
}

// runSunoSeparation drives provider A: title-tagged stem clips delivered
// progressively as each one completes.
func (s *StudioService) runSunoSeparation(ctx context.Context, coord *delivery.Coordinator, track model.Clip) {
	defer coord.ProviderDone(ctx)

	resp, err := s.suno.SeparateStems(ctx, track.ID)
	if err != nil {
		log.Printf("[Studio] suno separation failed for clip %s: %v", track.ID, err)
		return
	}
	ids := make([]string, 0, len(resp.Clips))
	for _, c := range resp.Clips {
		ids = append(ids, c.ID)
	}

	_, err = poller.WaitProgressively(ctx, s.suno.GetClips, ids, func(c model.Clip) {
		coord.Deliver(ctx, model.CachedStem{
			StemType:   stems.TitleToTypeOrFallback(c.Title),
			AudioURL:   c.AudioURL,
			ClipID:     c.ID,
			FromClipID: track.ID,
			CreatedAt:  time.Now(),
		})
	}, s.stemOpts)
	if err != nil {
		log.Printf("[Studio] suno stem polling ended for clip %s: %v", track.ID, err)
	}
}

// runDemucsSeparation drives provider B: one synchronous call returning the
// whole stem map, addressed by stable stem URLs.
func (s *StudioService) runDemucsSeparation(ctx context.Context, coord *delivery.Coordinator, track model.Clip, projectID string) {
	defer coord.ProviderDone(ctx)

	resp, err := s.demucs.Separate(ctx, track.AudioURL, projectID)
	if err != nil {
		log.Printf("[Studio] demucs separation failed for project %s: %v", projectID, err)
		return
	}
	for name := range resp.Stems {
		t, ok := stems.DemucsNameToType(name)
		if !ok {
			log.Printf("[Studio] demucs returned unknown stem %q, skipping", name)
			continue
		}
		coord.Deliver(ctx, model.CachedStem{
			StemType:   t,
			AudioURL:   s.demucs.StemURL(resp.JobID, name),
			ClipID:     fmt.Sprintf("%s/%s", resp.JobID, name),
			FromClipID: track.ID,
			CreatedAt:  time.Now(),
		})
	}
}

// projectSink lands coordinator decisions in the store and the hub.
type projectSink struct {
	svc       *StudioService
	st        *project.Store
	projectID string
}

// SwapCoreLayers replaces the full-mix preview with the buffered core layers
// in one layer-list replacement.
func (ps *projectSink) SwapCoreLayers(ctx context.Context, core []model.CachedStem) {
	p := ps.st.Update(ctx, func(p model.Project) model.Project {
		layers := p.Layers[:0]
		for _, l := range p.Layers {
			if !l.IsPreview {
				l.Position = len(layers)
				layers = append(layers, l)
			}
		}
		for _, cs := range core {
			layers = append(layers, model.Layer{
				ID:        uuid.New().String(),
				ProjectID: p.ID,
				Name:      stems.DisplayName(cs.StemType),
				StemType:  cs.StemType,
				AudioURL:  cs.AudioURL,
				ClipID:    cs.ClipID,
				Volume:    defaultLayerVolume,
				Position:  len(layers),
				CreatedAt: time.Now(),
			})
		}
		p.Layers = layers
		return p
	})

	for _, cs := range core {
		ps.svc.hub.BroadcastStem(ps.projectID, cs.StemType, false)
	}
	ps.svc.hub.BroadcastLayers(ps.projectID, p.Layers)
}

// AddCoreLayer appends a single core layer for a stem that missed the swap.
func (ps *projectSink) AddCoreLayer(ctx context.Context, cs model.CachedStem) {
	p := ps.st.AddLayer(ctx, model.Layer{
		ID:       uuid.New().String(),
		Name:     stems.DisplayName(cs.StemType),
		StemType: cs.StemType,
		AudioURL: cs.AudioURL,
		ClipID:   cs.ClipID,
		Volume:   defaultLayerVolume,
	})
	ps.svc.hub.BroadcastStem(ps.projectID, cs.StemType, false)
	ps.svc.hub.BroadcastLayers(ps.projectID, p.Layers)
}

func (ps *projectSink) CacheStem(ctx context.Context, stem model.CachedStem) {
	ps.st.AppendStemCache(ctx, stem)
	ps.svc.hub.BroadcastStem(ps.projectID, stem.StemType, true)
}

func (ps *projectSink) DegradedNotice(ctx context.Context) {
	ps.svc.hub.BroadcastNotice(ps.projectID,
		"Stem separation is unavailable right now. Your track stays playable as a single mix; try adding layers again later.")
}

// runLayerGeneration produces one stem on demand: generate a cover of the
// original track biased toward the stem type, separate it, and pull out the
// matching stem. Used by both add-layer (fresh slot) and regenerate (A/B).
func (s *StudioService) runLayerGeneration(ctx context.Context, st *project.Store, layerID string, stemType model.StemType, tags, originalClipID string, isRegen bool) {
	projectID := st.Get().ID
	display := stems.DisplayName(stemType)

	fail := func(err error) {
		log.Printf("[Studio] %s layer generation failed for project %s: %v", stemType, projectID, err)
		st.UpdateLayer(ctx, layerID, func(l model.Layer) model.Layer {
			if isRegen {
				// old audio stays live; only the in-flight marker is cleared
				l.GenerationStatus = model.GenerationNone
			} else {
				l.GenerationStatus = model.GenerationError
			}
			return l
		})
		s.hub.BroadcastLayers(projectID, st.Get().Layers)
		s.hub.BroadcastError(projectID, "GENERATION_ERROR",
			fmt.Sprintf("Couldn't produce a new %s take: %v", display, err))
	}

	coverTags := stems.TypeTags[stemType]
	if tags != "" {
		coverTags = tags + ", " + coverTags
	}
	instrumental := stemType != model.StemVocals && stemType != model.StemBackingVocals

	resp, err := s.suno.GenerateTrack(ctx, &client.GenerateTrackRequest{
		Tags:             coverTags,
		CoverClipID:      originalClipID,
		MakeInstrumental: instrumental,
	})
	if err != nil {
		fail(err)
		return
	}
	ids := make([]string, 0, len(resp.Clips))
	for _, c := range resp.Clips {
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		fail(fmt.Errorf("cover generation returned no clips"))
		return
	}

	clips, err := poller.WaitForClips(ctx, s.suno.GetClips, ids, s.clipOpts)
	if err != nil {
		fail(err)
		return
	}
	var cover model.Clip
	for _, c := range clips {
		if c.AudioURL != "" {
			cover = c
			break
		}
	}
	if cover.ID == "" {
		fail(fmt.Errorf("cover generation completed without a playable clip"))
		return
	}

	st.UpdateLayer(ctx, layerID, func(l model.Layer) model.Layer {
		l.GenerationStatus = model.GenerationSeparating
		return l
	})
	s.hub.BroadcastLayers(projectID, st.Get().Layers)

	sep, err := s.suno.SeparateStems(ctx, cover.ID)
	if err != nil {
		fail(err)
		return
	}
	sepIDs := make([]string, 0, len(sep.Clips))
	for _, c := range sep.Clips {
		sepIDs = append(sepIDs, c.ID)
	}

	target, err := poller.WaitForStemType(ctx, s.suno.GetClips, sepIDs, stemType, s.stemOpts)
	if err != nil {
		fail(err)
		return
	}

	if isRegen {
		old, _ := st.Get().Layer(layerID)
		st.PushVersion(ctx, layerID, model.LayerVersion{
			AudioURL:  old.AudioURL,
			ClipID:    old.ClipID,
			Prompt:    old.Prompt,
			CreatedAt: time.Now(),
		})
		st.UpdateLayer(ctx, layerID, func(l model.Layer) model.Layer {
			l.PreviousAudioURL = l.AudioURL
			l.AudioURL = target.AudioURL
			l.ClipID = target.ID
			l.Prompt = strings.TrimSpace(tags)
			l.GenerationStatus = model.GenerationNone
			return l
		})
		st.Update(ctx, func(p model.Project) model.Project {
			p.ABState[layerID] = model.ABComparing
			return p
		})
		s.hub.BroadcastLayers(projectID, st.Get().Layers)
		s.hub.BroadcastNotice(projectID,
			fmt.Sprintf("New %s take is ready. Compare A and B, then keep one.", display))
		return
	}

	st.UpdateLayer(ctx, layerID, func(l model.Layer) model.Layer {
		l.AudioURL = target.AudioURL
		l.ClipID = target.ID
		l.GenerationStatus = model.GenerationNone
		return l
	})
	s.hub.BroadcastLayers(projectID, st.Get().Layers)
	s.hub.BroadcastStem(projectID, stemType, false)
}
