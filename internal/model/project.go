package model

import "time"

// Clip is the normalized per-item view of a generation or separation job as
// reported by the provider's batched status endpoint.
type Clip struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	AudioURL string     `json:"audio_url"`
	Status   ClipStatus `json:"status"`
}

// LayerVersion is an immutable snapshot of a layer's prior audio, pushed
// whenever the live audio is about to be overwritten.
type LayerVersion struct {
	AudioURL  string    `json:"audioUrl"`
	ClipID    string    `json:"clipId"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Layer is a mixer channel backed by one stem.
type Layer struct {
	ID               string           `json:"id"`
	ProjectID        string           `json:"projectId"`
	Name             string           `json:"name"`
	StemType         StemType         `json:"stemType"`
	Prompt           string           `json:"prompt"`
	AudioURL         string           `json:"audioUrl"`
	PreviousAudioURL string           `json:"previousAudioUrl,omitempty"`
	Volume           float64          `json:"volume"`
	IsMuted          bool             `json:"isMuted"`
	IsSoloed         bool             `json:"isSoloed"`
	Position         int              `json:"position"`
	ClipID           string           `json:"clipId,omitempty"`
	IsPreview        bool             `json:"isPreview,omitempty"`
	GenerationStatus GenerationStatus `json:"generationStatus,omitempty"`
	Versions         []LayerVersion   `json:"versions"`
	VersionCursor    int              `json:"versionCursor"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// CachedStem is a ready-but-unclaimed stem delivered by a separation provider.
type CachedStem struct {
	StemType   StemType  `json:"stemType"`
	AudioURL   string    `json:"audioUrl"`
	ClipID     string    `json:"clipId"`
	FromClipID string    `json:"fromClipId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Project is the aggregate root. It is treated as a value everywhere: every
// mutation derives a new Project from the previous one, never writes fields of
// a shared instance in place.
type Project struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	VibePrompt     string             `json:"vibePrompt"`
	Duration       float64            `json:"duration"`
	Layers         []Layer            `json:"layers"`
	OriginalClipID string             `json:"originalClipId,omitempty"`
	StemCache      []CachedStem       `json:"stemCache"`
	ABState        map[string]ABState `json:"abState"`
	Lyrics         string             `json:"lyrics,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// NewProject creates an empty project.
func NewProject(id string) Project {
	now := time.Now()
	return Project{
		ID:        id,
		Title:     "Untitled Project",
		Duration:  120,
		Layers:    []Layer{},
		StemCache: []CachedStem{},
		ABState:   map[string]ABState{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can hand out snapshots without aliasing
// the store's current value.
func (p Project) Clone() Project {
	out := p
	out.Layers = make([]Layer, len(p.Layers))
	for i, l := range p.Layers {
		out.Layers[i] = l
		out.Layers[i].Versions = append([]LayerVersion(nil), l.Versions...)
	}
	out.StemCache = append([]CachedStem(nil), p.StemCache...)
	out.ABState = make(map[string]ABState, len(p.ABState))
	for k, v := range p.ABState {
		out.ABState[k] = v
	}
	return out
}

// Layer returns the layer with the given id, if present.
func (p Project) Layer(layerID string) (Layer, bool) {
	for _, l := range p.Layers {
		if l.ID == layerID {
			return l, true
		}
	}
	return Layer{}, false
}

// CachedStemTypes lists the stem types currently sitting in the cache.
func (p Project) CachedStemTypes() []StemType {
	types := make([]StemType, 0, len(p.StemCache))
	for _, s := range p.StemCache {
		types = append(types, s.StemType)
	}
	return types
}
