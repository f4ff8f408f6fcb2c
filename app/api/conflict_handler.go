package api

import (
	"github.com/gofiber/fiber/v2"

	"secondbrain/app/middleware"
	"secondbrain/conflict"
	"secondbrain/types"
)

type ConflictHandler struct {
	detector *conflict.Detector
}

func NewConflictHandler(detector *conflict.Detector) *ConflictHandler {
	return &ConflictHandler{
		detector: detector,
	}
}

// HandleCheck runs a conflict check on a text without storing anything.
func (h *ConflictHandler) HandleCheck(c *fiber.Ctx) error {
	var params types.CheckParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	detector := h.detector
	if params.Threshold != nil {
		detector = detector.WithThreshold(*params.Threshold)
	}

	report := detector.DetectConflicts(c.UserContext(), params.Text, params.Name, middleware.OwnerID(c))
	return c.JSON(report)
}

func (h *ConflictHandler) HandleDiagnose(c *fiber.Ctx) error {
	var params types.DiagnoseParams
	if len(c.Body()) > 0 && c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	diag := h.detector.Diagnose(c.UserContext(), middleware.OwnerID(c), params.Text, params.Threshold)
	return c.JSON(diag)
}
