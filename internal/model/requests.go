package model

// GenerateTrackRequest starts a full-track generation.
type GenerateTrackRequest struct {
	Topic        string `json:"topic" validate:"required_without=Lyrics,omitempty,max=500"`
	Tags         string `json:"tags" validate:"required,max=500"`
	Instrumental bool   `json:"instrumental"`
	NegativeTags string `json:"negativeTags" validate:"omitempty,max=500"`
	Lyrics       string `json:"lyrics" validate:"omitempty,max=5000"`
}

// GenerateTrackResponse acknowledges a started pipeline.
type GenerateTrackResponse struct {
	ProjectID string   `json:"projectId"`
	ClipIDs   []string `json:"clipIds"`
	Status    string   `json:"status"`
}

// AddLayerRequest adds one stem layer, from cache or by generating a cover.
type AddLayerRequest struct {
	ProjectID string   `json:"projectId" validate:"required"`
	StemType  StemType `json:"stemType" validate:"required"`
	Tags      string   `json:"tags" validate:"omitempty,max=500"`
}

// RegenerateLayerRequest regenerates an existing layer for A/B comparison.
type RegenerateLayerRequest struct {
	ProjectID   string `json:"projectId" validate:"required"`
	Description string `json:"description" validate:"required,max=500"`
}

// SetLyricsRequest replaces the project lyrics text.
type SetLyricsRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
	Lyrics    string `json:"lyrics" validate:"max=20000"`
}

// StatusMessageResponse wraps the human-readable status string the command
// interface returns. The chat agent consumes this string as its only feedback
// channel, so it must carry enough detail to drive the next decision.
type StatusMessageResponse struct {
	Message string `json:"message"`
}

// AgentToolRequest is one tool invocation from the chat-agent dispatcher.
type AgentToolRequest struct {
	Tool  string                 `json:"tool" validate:"required,oneof=generate_track add_layer regenerate_layer remove_layer set_lyrics get_composition_state"`
	Input map[string]interface{} `json:"input"`
}
