package model

// WebSocket message types
type WSMessageType string

const (
	WSMessageTypePhase    WSMessageType = "phase"
	WSMessageTypeStem     WSMessageType = "stem_ready"
	WSMessageTypeLayers   WSMessageType = "layers"
	WSMessageTypeNotice   WSMessageType = "notice"
	WSMessageTypeError    WSMessageType = "error"
	WSMessageTypePing     WSMessageType = "ping"
	WSMessageTypePong     WSMessageType = "pong"
)

// WSMessage is the minimal envelope for client messages (ping/pong).
type WSMessage struct {
	Type WSMessageType `json:"type"`
}

// WSPhaseMessage announces a project-wide generation phase change.
type WSPhaseMessage struct {
	Type      WSMessageType `json:"type"`
	ProjectID string        `json:"projectId"`
	Phase     Phase         `json:"phase"`
	Detail    string        `json:"detail,omitempty"`
}

// WSStemMessage announces a single delivered stem.
type WSStemMessage struct {
	Type      WSMessageType `json:"type"`
	ProjectID string        `json:"projectId"`
	StemType  StemType      `json:"stemType"`
	Cached    bool          `json:"cached"`
}

// WSLayersMessage carries the replacement layer list after a mutation.
type WSLayersMessage struct {
	Type      WSMessageType `json:"type"`
	ProjectID string        `json:"projectId"`
	Layers    []Layer       `json:"layers"`
}

// WSNoticeMessage is a non-fatal user-facing notice (degraded service etc).
type WSNoticeMessage struct {
	Type      WSMessageType `json:"type"`
	ProjectID string        `json:"projectId"`
	Message   string        `json:"message"`
}

// WSErrorMessage reports a failed operation.
type WSErrorMessage struct {
	Type      WSMessageType `json:"type"`
	ProjectID string        `json:"projectId"`
	Error     WSError       `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
