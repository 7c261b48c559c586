package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/facelessreel/api/internal/model"
)

// HealthHandler reports collaborator configuration and job counts.
type HealthHandler struct {
	services map[string]func() bool
	jobs     func() map[model.JobStatus]int
}

func NewHealthHandler(services map[string]func() bool, jobs func() map[model.JobStatus]int) *HealthHandler {
	return &HealthHandler{services: services, jobs: jobs}
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Faceless Reel Generator API",
		"status":  "running",
	})
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	services := fiber.Map{}
	for name, check := range h.services {
		services[name] = check()
	}

	jobs := fiber.Map{}
	for _, status := range []model.JobStatus{
		model.JobStatusQueued,
		model.JobStatusProcessing,
		model.JobStatusCompleted,
		model.JobStatusFailed,
	} {
		jobs[string(status)] = 0
	}
	if h.jobs != nil {
		for status, n := range h.jobs() {
			jobs[string(status)] = n
		}
	}

	return c.JSON(fiber.Map{
		"status":   "ok",
		"services": services,
		"jobs":     jobs,
	})
}
