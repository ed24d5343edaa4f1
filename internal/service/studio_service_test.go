package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layertune/api/internal/client"
	"github.com/layertune/api/internal/config"
	"github.com/layertune/api/internal/model"
	"github.com/layertune/api/internal/project"
	ws "github.com/layertune/api/internal/websocket"
)

// fakeGenerator scripts the generation provider. Clips returned by genFn and
// sepFn are registered so GetClips can serve their current state.
type fakeGenerator struct {
	mu    sync.Mutex
	clips map[string]model.Clip
	genFn func(req *client.GenerateTrackRequest) []model.Clip
	sepFn func(clipID string) ([]model.Clip, error)
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{clips: make(map[string]model.Clip)}
}

func (f *fakeGenerator) register(clips []model.Clip) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range clips {
		f.clips[c.ID] = c
	}
}

func (f *fakeGenerator) GenerateTrack(ctx context.Context, req *client.GenerateTrackRequest) (*client.GenerateTrackResponse, error) {
	clips := f.genFn(req)
	f.register(clips)
	return &client.GenerateTrackResponse{ID: "batch", Clips: clips}, nil
}

func (f *fakeGenerator) GetClips(ctx context.Context, ids []string) ([]model.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Clip, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.clips[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeGenerator) SeparateStems(ctx context.Context, clipID string) (*client.StemResponse, error) {
	clips, err := f.sepFn(clipID)
	if err != nil {
		return nil, err
	}
	f.register(clips)
	return &client.StemResponse{ID: clipID, Clips: clips}, nil
}

type fakeSeparator struct {
	stems map[string]json.RawMessage
	err   error
}

func (f *fakeSeparator) Separate(ctx context.Context, audioURL, jobID string) (*client.DemucsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &client.DemucsResponse{JobID: jobID, Stems: f.stems}, nil
}

func (f *fakeSeparator) StemURL(jobID, stemName string) string {
	return fmt.Sprintf("https://demucs.test/get_stem?job_id=%s&stem=%s", jobID, stemName)
}

func testConfig() *config.Config {
	return &config.Config{
		Poll:  config.PollConfig{ClipInterval: 0, StemInterval: 0, GenerateTimeout: 2, SeparateTimeout: 2},
		Stems: config.StemsConfig{Core: []string{"drums", "bass", "vocals"}},
	}
}

func newTestService(t *testing.T, gen *fakeGenerator, sep client.StemSeparator) (*StudioService, project.Repository) {
	t.Helper()
	hub := ws.NewHub()
	go hub.Run()
	repo := project.NewMemoryRepository()
	return NewStudioService(gen, sep, repo, hub, testConfig()), repo
}

func doneClip(id, title string) model.Clip {
	return model.Clip{ID: id, Title: title, Status: model.ClipStatusComplete, AudioURL: "https://cdn/" + id + ".mp3"}
}

func stemBatch(track string) []model.Clip {
	return []model.Clip{
		doneClip("s-drums", track+" - Drums"),
		doneClip("s-bass", track+" - Bass"),
		doneClip("s-vocals", track+" - Vocals"),
		doneClip("s-guitar", track+" - Guitar"),
	}
}

func TestGenerateTrackPipelineSwapsPreviewForCoreLayers(t *testing.T) {
	gen := newFakeGenerator()
	gen.genFn = func(req *client.GenerateTrackRequest) []model.Clip {
		return []model.Clip{doneClip("track-1", "Midnight Drive")}
	}
	gen.sepFn = func(clipID string) ([]model.Clip, error) {
		return stemBatch("Midnight Drive"), nil
	}
	sep := &fakeSeparator{stems: map[string]json.RawMessage{
		"vocals": nil, "drums": nil, "bass": nil, "other": nil,
	}}
	svc, _ := newTestService(t, gen, sep)

	resp, err := svc.GenerateTrack(context.Background(), &model.GenerateTrackRequest{Topic: "midnight drive", Tags: "synthwave"})
	require.NoError(t, err)
	assert.Equal(t, "generating", resp.Status)
	assert.Equal(t, []string{"track-1"}, resp.ClipIDs)

	require.Eventually(t, func() bool {
		p, err := svc.GetState(context.Background(), resp.ProjectID)
		return err == nil && len(p.Layers) == 3 && !p.Layers[0].IsPreview
	}, 3*time.Second, 10*time.Millisecond, "preview must be swapped for core layers")

	p, err := svc.GetState(context.Background(), resp.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, model.StemDrums, p.Layers[0].StemType)
	assert.Equal(t, model.StemBass, p.Layers[1].StemType)
	assert.Equal(t, model.StemVocals, p.Layers[2].StemType)
	assert.Equal(t, "track-1", p.OriginalClipID)
	assert.Equal(t, "Midnight Drive", p.Title)

	// suno guitar + demucs residual; the losing provider's core copies are ignored
	require.Eventually(t, func() bool {
		p, _ := svc.GetState(context.Background(), resp.ProjectID)
		return len(p.StemCache) == 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestGenerateTrackKeepsPreviewWhenSeparationFails(t *testing.T) {
	gen := newFakeGenerator()
	gen.genFn = func(req *client.GenerateTrackRequest) []model.Clip {
		return []model.Clip{doneClip("track-1", "Midnight Drive")}
	}
	gen.sepFn = func(clipID string) ([]model.Clip, error) {
		return nil, fmt.Errorf("suno request failed (503): separation offline")
	}
	sep := &fakeSeparator{err: fmt.Errorf("demucs separation failed (503): overloaded")}
	svc, _ := newTestService(t, gen, sep)

	resp, err := svc.GenerateTrack(context.Background(), &model.GenerateTrackRequest{Topic: "x", Tags: "y"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p, err := svc.GetState(context.Background(), resp.ProjectID)
		return err == nil && len(p.Layers) == 1 && p.Layers[0].IsPreview
	}, 3*time.Second, 10*time.Millisecond)

	// give the pipeline a moment to prove it leaves the preview alone
	time.Sleep(50 * time.Millisecond)
	p, err := svc.GetState(context.Background(), resp.ProjectID)
	require.NoError(t, err)
	require.Len(t, p.Layers, 1)
	assert.True(t, p.Layers[0].IsPreview)
	assert.Empty(t, p.StemCache)
}

func seedProject(t *testing.T, repo project.Repository, p model.Project) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), p))
}

func TestAddLayerClaimsCachedStem(t *testing.T) {
	gen := newFakeGenerator()
	svc, repo := newTestService(t, gen, nil)

	p := model.NewProject("proj-1")
	p.OriginalClipID = "track-1"
	p.StemCache = []model.CachedStem{
		{StemType: model.StemGuitar, AudioURL: "https://cdn/g.mp3", ClipID: "s-guitar"},
		{StemType: model.StemSynth, AudioURL: "https://cdn/s.mp3", ClipID: "s-synth"},
	}
	seedProject(t, repo, p)

	resp, err := svc.AddLayer(context.Background(), &model.AddLayerRequest{ProjectID: "proj-1", StemType: model.StemGuitar})
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "from the stem library")
	assert.Contains(t, resp.Message, "synth")

	state, err := svc.GetState(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, state.Layers, 1)
	assert.Equal(t, "https://cdn/g.mp3", state.Layers[0].AudioURL)
	require.Len(t, state.StemCache, 1)
	assert.Equal(t, model.StemSynth, state.StemCache[0].StemType)
}

func TestAddLayerGeneratesCoverWhenCacheMisses(t *testing.T) {
	gen := newFakeGenerator()
	gen.genFn = func(req *client.GenerateTrackRequest) []model.Clip {
		if req.CoverClipID != "track-1" {
			return nil
		}
		return []model.Clip{doneClip("cover-1", "Cover")}
	}
	gen.sepFn = func(clipID string) ([]model.Clip, error) {
		return []model.Clip{doneClip("cs-keys", "Cover - Keyboard"), doneClip("cs-drums", "Cover - Drums")}, nil
	}
	svc, repo := newTestService(t, gen, nil)

	p := model.NewProject("proj-1")
	p.OriginalClipID = "track-1"
	seedProject(t, repo, p)

	resp, err := svc.AddLayer(context.Background(), &model.AddLayerRequest{ProjectID: "proj-1", StemType: model.StemKeyboard})
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "background")

	require.Eventually(t, func() bool {
		state, err := svc.GetState(context.Background(), "proj-1")
		if err != nil || len(state.Layers) != 1 {
			return false
		}
		l := state.Layers[0]
		return l.AudioURL == "https://cdn/cs-keys.mp3" && l.GenerationStatus == model.GenerationNone
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAddLayerWithoutSourceTrackFails(t *testing.T) {
	gen := newFakeGenerator()
	svc, repo := newTestService(t, gen, nil)
	seedProject(t, repo, model.NewProject("proj-1"))

	_, err := svc.AddLayer(context.Background(), &model.AddLayerRequest{ProjectID: "proj-1", StemType: model.StemDrums})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate a track first")
}

func TestRegenerateLayerCreatesComparison(t *testing.T) {
	gen := newFakeGenerator()
	gen.genFn = func(req *client.GenerateTrackRequest) []model.Clip {
		return []model.Clip{doneClip("cover-1", "Cover")}
	}
	gen.sepFn = func(clipID string) ([]model.Clip, error) {
		return []model.Clip{doneClip("cs-drums", "Cover - Drums")}, nil
	}
	svc, repo := newTestService(t, gen, nil)

	p := model.NewProject("proj-1")
	p.OriginalClipID = "track-1"
	p.Layers = []model.Layer{{
		ID: "l1", Name: "Drums", StemType: model.StemDrums,
		AudioURL: "https://cdn/old-drums.mp3", ClipID: "old-drums", Prompt: "old",
	}}
	seedProject(t, repo, p)

	resp, err := svc.RegenerateLayer(context.Background(), "l1", &model.RegenerateLayerRequest{ProjectID: "proj-1", Description: "more punch"})
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Regenerating")

	require.Eventually(t, func() bool {
		state, _ := svc.GetState(context.Background(), "proj-1")
		return state.ABState["l1"] == model.ABComparing
	}, 3*time.Second, 10*time.Millisecond)

	state, err := svc.GetState(context.Background(), "proj-1")
	require.NoError(t, err)
	l, _ := state.Layer("l1")
	assert.Equal(t, "https://cdn/cs-drums.mp3", l.AudioURL)
	assert.Equal(t, "https://cdn/old-drums.mp3", l.PreviousAudioURL)
	require.Len(t, l.Versions, 1)
	assert.Equal(t, "https://cdn/old-drums.mp3", l.Versions[0].AudioURL)

	// resolving in favor of the old take restores it and banks the new one
	_, err = svc.KeepA(context.Background(), "proj-1", "l1")
	require.NoError(t, err)
	state, _ = svc.GetState(context.Background(), "proj-1")
	l, _ = state.Layer("l1")
	assert.Equal(t, "https://cdn/old-drums.mp3", l.AudioURL)
	assert.Equal(t, "https://cdn/cs-drums.mp3", l.Versions[0].AudioURL)
}

func TestRegenerateFailureLeavesOldAudio(t *testing.T) {
	gen := newFakeGenerator()
	gen.genFn = func(req *client.GenerateTrackRequest) []model.Clip {
		return []model.Clip{doneClip("cover-1", "Cover")}
	}
	gen.sepFn = func(clipID string) ([]model.Clip, error) {
		// separation yields stems, none of them drums
		return []model.Clip{doneClip("cs-vocals", "Cover - Vocals")}, nil
	}
	svc, repo := newTestService(t, gen, nil)

	p := model.NewProject("proj-1")
	p.OriginalClipID = "track-1"
	p.Layers = []model.Layer{{
		ID: "l1", Name: "Drums", StemType: model.StemDrums,
		AudioURL: "https://cdn/old-drums.mp3", ClipID: "old-drums",
	}}
	seedProject(t, repo, p)

	_, err := svc.RegenerateLayer(context.Background(), "l1", &model.RegenerateLayerRequest{ProjectID: "proj-1", Description: "more punch"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, _ := svc.GetState(context.Background(), "proj-1")
		l, _ := state.Layer("l1")
		return l.GenerationStatus == model.GenerationNone && l.AudioURL == "https://cdn/old-drums.mp3"
	}, 3*time.Second, 10*time.Millisecond)

	state, _ := svc.GetState(context.Background(), "proj-1")
	assert.NotContains(t, state.ABState, "l1")
	l, _ := state.Layer("l1")
	assert.Empty(t, l.Versions, "failed regeneration must not touch history")
}

func TestCompositionSummaryNamesLayersAndCache(t *testing.T) {
	gen := newFakeGenerator()
	svc, repo := newTestService(t, gen, nil)

	p := model.NewProject("proj-1")
	p.Title = "Midnight Drive"
	p.VibePrompt = "synthwave"
	p.Layers = []model.Layer{
		{ID: "l1", Name: "Drums", StemType: model.StemDrums, AudioURL: "https://cdn/d.mp3"},
		{ID: "l2", Name: "Bass", StemType: model.StemBass, AudioURL: "https://cdn/b.mp3", IsMuted: true},
	}
	p.StemCache = []model.CachedStem{{StemType: model.StemGuitar, AudioURL: "https://cdn/g.mp3"}}
	seedProject(t, repo, p)

	resp, err := svc.CompositionSummary(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Midnight Drive")
	assert.Contains(t, resp.Message, "2 layers")
	assert.Contains(t, resp.Message, "Bass (muted)")
	assert.Contains(t, resp.Message, "guitar")
}
