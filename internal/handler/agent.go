package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/layertune/api/internal/model"
	"github.com/layertune/api/internal/service"
	"github.com/layertune/api/pkg/response"
)

// AgentHandler routes chat-agent tool calls onto the studio commands. The
// agent only ever sees the returned status string, so every branch answers
// with a StatusMessageResponse.
type AgentHandler struct {
	service   *service.StudioService
	validator *validator.Validate
}

func NewAgentHandler(svc *service.StudioService, v *validator.Validate) *AgentHandler {
	return &AgentHandler{
		service:   svc,
		validator: v,
	}
}

// Tool handles POST /api/agent/tool
func (h *AgentHandler) Tool(c *fiber.Ctx) error {
	var req model.AgentToolRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.dispatch(c.Context(), &req)
	if err != nil {
		// tool failures go back as a status string; the agent relays them
		return response.OK(c, &model.StatusMessageResponse{
			Message: fmt.Sprintf("The %s tool failed: %v", req.Tool, err),
		})
	}

	return response.OK(c, result)
}

// layerToolInput covers the tools addressing one existing layer.
type layerToolInput struct {
	ProjectID   string `json:"projectId" validate:"required"`
	LayerID     string `json:"layerId" validate:"required"`
	Description string `json:"description"`
}

// projectToolInput covers the tools addressing the whole project.
type projectToolInput struct {
	ProjectID string `json:"projectId" validate:"required"`
}

func (h *AgentHandler) dispatch(ctx context.Context, req *model.AgentToolRequest) (*model.StatusMessageResponse, error) {
	raw, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("unreadable tool input: %w", err)
	}

	switch req.Tool {
	case "generate_track":
		var in model.GenerateTrackRequest
		if err := h.decode(raw, &in); err != nil {
			return nil, err
		}
		resp, err := h.service.GenerateTrack(ctx, &in)
		if err != nil {
			return nil, err
		}
		return &model.StatusMessageResponse{
			Message: fmt.Sprintf("Generation started for project %s with %d candidate clips. Stems will arrive as they complete.", resp.ProjectID, len(resp.ClipIDs)),
		}, nil

	case "add_layer":
		var in model.AddLayerRequest
		if err := h.decode(raw, &in); err != nil {
			return nil, err
		}
		return h.service.AddLayer(ctx, &in)

	case "regenerate_layer":
		var in layerToolInput
		if err := h.decode(raw, &in); err != nil {
			return nil, err
		}
		if in.Description == "" {
			return nil, fmt.Errorf("regenerate_layer needs a description of the desired change")
		}
		return h.service.RegenerateLayer(ctx, in.LayerID, &model.RegenerateLayerRequest{
			ProjectID:   in.ProjectID,
			Description: in.Description,
		})

	case "remove_layer":
		var in layerToolInput
		if err := h.decode(raw, &in); err != nil {
			return nil, err
		}
		return h.service.RemoveLayer(ctx, in.ProjectID, in.LayerID)

	case "set_lyrics":
		var in model.SetLyricsRequest
		if err := h.decode(raw, &in); err != nil {
			return nil, err
		}
		return h.service.SetLyrics(ctx, &in)

	case "get_composition_state":
		var in projectToolInput
		if err := h.decode(raw, &in); err != nil {
			return nil, err
		}
		return h.service.CompositionSummary(ctx, in.ProjectID)

	default:
		return nil, fmt.Errorf("unknown tool %q", req.Tool)
	}
}

func (h *AgentHandler) decode(raw []byte, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	if err := h.validator.Struct(out); err != nil {
		return fmt.Errorf("invalid tool input: %v", formatValidationErrors(err))
	}
	return nil
}
