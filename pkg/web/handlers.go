// Package web provides HTTP handlers and REST API endpoints for journey
// management and event ingress.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/autocrm/journey/pkg/events"
	"github.com/autocrm/journey/pkg/journey"
	"github.com/autocrm/journey/pkg/models"
	"github.com/autocrm/journey/pkg/persistence"
)

type APIHandlers struct {
	repository  *journey.Repository
	matcher     *journey.TriggerMatcher
	executor    *journey.Executor
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	repository *journey.Repository,
	matcher *journey.TriggerMatcher,
	executor *journey.Executor,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		repository:  repository,
		matcher:     matcher,
		executor:    executor,
		persistence: persistence,
		validator:   validator,
	}
}

// RegisterRoutes mounts every API endpoint on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	app.Get("/journeys", h.GetJourneys)
	app.Post("/journeys", h.CreateJourney)
	app.Get("/journeys/:id", h.GetJourney)
	app.Patch("/journeys/:id", h.UpdateJourney)
	app.Delete("/journeys/:id", h.DeleteJourney)

	app.Get("/journeys/:id/versions", h.GetVersions)
	app.Post("/journeys/:id/versions", h.SaveVersion)
	app.Post("/journeys/:id/publish", h.PublishJourney)
	app.Post("/journeys/:id/pause", h.PauseJourney)
	app.Post("/journeys/:id/test-run", h.TestRun)
	app.Get("/journeys/:id/enrollments", h.GetJourneyEnrollments)

	app.Get("/enrollments/:id", h.GetEnrollment)
	app.Get("/enrollments/:id/log", h.GetEnrollmentLog)

	app.Post("/events", h.IngestEvent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.repository.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Journey API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Journey API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	if statusStr := c.Query("status"); statusStr != "" {
		journeys, err := h.persistence.JourneyRepository().JourneysByStatus(c.Context(), models.JourneyStatus(statusStr))
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(journeys)
	}

	journeys, err := h.repository.FetchAll(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(journeys)
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	found, err := h.repository.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	var req CreateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.repository.Create(c.Context(), &models.Journey{Name: req.Name})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	var req UpdateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.repository.Update(c.Context(), id, req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	if err := h.repository.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetVersions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	if _, err := h.repository.FetchByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	versions, err := h.persistence.JourneyRepository().VersionsByJourney(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(versions)
}

func (h *APIHandlers) SaveVersion(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	var req SaveVersionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := h.repository.SaveVersion(c.Context(), id, req.Graph)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

func (h *APIHandlers) PublishJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	published, err := h.repository.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) PauseJourney(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	paused, err := h.repository.Pause(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(paused)
}

// TestRun enrolls a subject into the journey's current version without
// trigger matching. Works on drafts so authors can exercise a graph before
// publishing.
func (h *APIHandlers) TestRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	var req TestRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	found, err := h.repository.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	version, err := h.repository.CurrentVersion(c.Context(), found)
	if err != nil {
		return handleServiceError(c, err)
	}

	enrollment, err := h.executor.Enroll(c.Context(), found, version, req.SubjectID, req.Facts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

func (h *APIHandlers) GetJourneyEnrollments(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Journey ID is required")
	}

	if _, err := h.repository.FetchByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	enrollments, err := h.persistence.EnrollmentRepository().EnrollmentsByJourney(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(enrollments)
}

func (h *APIHandlers) GetEnrollment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	enrollment, err := h.persistence.EnrollmentRepository().EnrollmentByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(enrollment)
}

func (h *APIHandlers) GetEnrollmentLog(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Enrollment ID is required")
	}

	if _, err := h.persistence.EnrollmentRepository().EnrollmentByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	entries, err := h.persistence.ExecutionLogRepository().EntriesByEnrollment(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(entries)
}

// IngestEvent accepts a CRM subject event over HTTP and fans it out to
// matching journeys synchronously.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req IngestEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.SubjectEventReceived{
		BaseEvent: events.NewBaseEvent(events.SubjectEventReceivedEvent),
		Kind:      req.Kind,
		SubjectID: req.SubjectID,
		Payload:   req.Payload,
	}

	enrollments, err := h.matcher.OnEvent(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	if enrollments == nil {
		enrollments = []*models.Enrollment{}
	}

	return c.Status(fiber.StatusAccepted).JSON(IngestEventResponse{Enrollments: enrollments})
}
