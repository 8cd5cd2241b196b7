package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/autocrm/journey/pkg/journey"
	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine errors onto RFC 7807 problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsJourneyNotFound(err):
		return notFound(c, "journey not found")

	case persistence.IsVersionNotFound(err):
		return notFound(c, "journey version not found")

	case persistence.IsEnrollmentNotFound(err):
		return notFound(c, "enrollment not found")

	case errors.Is(err, journey.ErrJourneyHasNoVersion),
		errors.Is(err, journey.ErrJourneyNotActive),
		errors.Is(err, persistence.ErrVersionImmutable),
		errors.Is(err, persistence.ErrVersionNumberConflict):
		return conflict(c, err.Error())

	case isValidationError(err):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}

var graphErrors = []error{
	models.ErrNoTriggerNode,
	models.ErrMultipleTriggerNodes,
	models.ErrTriggerHasIncoming,
	models.ErrDanglingEdge,
	models.ErrDuplicateNodeID,
	models.ErrAmbiguousBranch,
	models.ErrUnlabeledBranch,
	models.ErrMultipleOutgoingEdges,
	models.ErrNodeConfigMismatch,
}

func isValidationError(err error) bool {
	if errors.Is(err, journey.ErrInvalidGraph) {
		return true
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		return true
	}

	for _, graphErr := range graphErrors {
		if errors.Is(err, graphErr) {
			return true
		}
	}

	return false
}
