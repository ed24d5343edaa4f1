package handler

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/layertune/api/internal/model"
	"github.com/layertune/api/internal/service"
	"github.com/layertune/api/pkg/response"
)

type StudioHandler struct {
	service   *service.StudioService
	validator *validator.Validate
}

func NewStudioHandler(svc *service.StudioService, v *validator.Validate) *StudioHandler {
	return &StudioHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/studio/generate
func (h *StudioHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateTrackRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.GenerateTrack(c.Context(), &req)
	if err != nil {
		return response.ProviderError(c, err)
	}

	return response.Accepted(c, result)
}

// State handles GET /api/studio/state
func (h *StudioHandler) State(c *fiber.Ctx) error {
	projectID := c.Query("projectId")
	if projectID == "" {
		return response.ValidationError(c, "projectId query parameter is required", nil)
	}

	p, err := h.service.GetState(c.Context(), projectID)
	if err != nil {
		return commandError(c, err)
	}

	return response.OK(c, p)
}

// AddLayer handles POST /api/studio/layers
func (h *StudioHandler) AddLayer(c *fiber.Ctx) error {
	var req model.AddLayerRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.AddLayer(c.Context(), &req)
	if err != nil {
		return commandError(c, err)
	}

	return response.Accepted(c, result)
}

// Regenerate handles POST /api/studio/layers/:layerId/regenerate
func (h *StudioHandler) Regenerate(c *fiber.Ctx) error {
	layerID := c.Params("layerId")

	var req model.RegenerateLayerRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.RegenerateLayer(c.Context(), layerID, &req)
	if err != nil {
		return commandError(c, err)
	}

	return response.Accepted(c, result)
}

// KeepA handles POST /api/studio/layers/:layerId/keep-a
func (h *StudioHandler) KeepA(c *fiber.Ctx) error {
	projectID := c.Query("projectId")
	if projectID == "" {
		return response.ValidationError(c, "projectId query parameter is required", nil)
	}

	result, err := h.service.KeepA(c.Context(), projectID, c.Params("layerId"))
	if err != nil {
		return commandError(c, err)
	}

	return response.OK(c, result)
}

// KeepB handles POST /api/studio/layers/:layerId/keep-b
func (h *StudioHandler) KeepB(c *fiber.Ctx) error {
	projectID := c.Query("projectId")
	if projectID == "" {
		return response.ValidationError(c, "projectId query parameter is required", nil)
	}

	result, err := h.service.KeepB(c.Context(), projectID, c.Params("layerId"))
	if err != nil {
		return commandError(c, err)
	}

	return response.OK(c, result)
}

// SwitchVersion handles POST /api/studio/layers/:layerId/versions/:index/switch
func (h *StudioHandler) SwitchVersion(c *fiber.Ctx) error {
	projectID := c.Query("projectId")
	if projectID == "" {
		return response.ValidationError(c, "projectId query parameter is required", nil)
	}

	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return response.ValidationError(c, "Version index must be a number", nil)
	}

	result, err := h.service.SwitchVersion(c.Context(), projectID, c.Params("layerId"), index)
	if err != nil {
		return commandError(c, err)
	}

	return response.OK(c, result)
}

// RemoveLayer handles DELETE /api/studio/layers/:layerId
func (h *StudioHandler) RemoveLayer(c *fiber.Ctx) error {
	projectID := c.Query("projectId")
	if projectID == "" {
		return response.ValidationError(c, "projectId query parameter is required", nil)
	}

	result, err := h.service.RemoveLayer(c.Context(), projectID, c.Params("layerId"))
	if err != nil {
		return commandError(c, err)
	}

	return response.OK(c, result)
}

// SetLyrics handles PUT /api/studio/lyrics
func (h *StudioHandler) SetLyrics(c *fiber.Ctx) error {
	var req model.SetLyricsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SetLyrics(c.Context(), &req)
	if err != nil {
		return commandError(c, err)
	}

	return response.OK(c, result)
}

// commandError maps a studio command failure to a response. Provider failures
// carry their upstream status as "(NNN)" in the message; everything else is
// either a missing resource or a rejected command.
func commandError(c *fiber.Ctx, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "not found") {
		return response.NotFound(c, msg)
	}
	if response.HTTPStatusFromError(err) != fiber.StatusInternalServerError {
		return response.ProviderError(c, err)
	}
	return response.Error(c, fiber.StatusBadRequest, response.CodeGenerationError, msg, nil)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
