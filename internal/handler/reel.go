package handler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/facelessreel/api/internal/model"
	"github.com/facelessreel/api/internal/registry"
	"github.com/facelessreel/api/internal/service"
	"github.com/facelessreel/api/internal/storage"
	ws "github.com/facelessreel/api/internal/websocket"
	"github.com/facelessreel/api/pkg/response"
)

type ReelHandler struct {
	service   *service.ReelService
	validator *validator.Validate
}

func NewReelHandler(svc *service.ReelService, v *validator.Validate) *ReelHandler {
	return &ReelHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/generate
func (h *ReelHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.Submit(c.UserContext(), req.Prompt, req.Duration)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return response.ValidationError(c, verr.Message, map[string]string{verr.Field: verr.Message})
		}
		log.Printf("Submit failed: %v", err)
		return response.ServiceError(c, "Failed to start job")
	}

	return response.Accepted(c, job.View())
}

// Status handles GET /api/status/:jobId
func (h *ReelHandler) Status(c *fiber.Ctx) error {
	job, err := h.service.Status(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return response.NotFound(c, "Job not found")
	}

	return response.OK(c, job.View())
}

// Download handles GET /api/download/:jobId
func (h *ReelHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")

	video, err := h.service.Download(c.UserContext(), jobID)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrVideoNotReady):
		return response.NotReady(c, "Video not ready")
	case errors.Is(err, storage.ErrArtifactMissing):
		return response.ArtifactMissing(c, "Video file not found")
	default:
		log.Printf("Job %s: download failed: %v", jobID, err)
		return response.ServiceError(c, "Failed to open video")
	}

	c.Set(fiber.HeaderContentType, "video/mp4")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="reel_%s.mp4"`, jobID))
	return c.SendStream(video.Body, int(video.Size))
}

// RequireJob rejects subscriptions to unknown jobs before the upgrade
func (h *ReelHandler) RequireJob(c *fiber.Ctx) error {
	if _, err := h.service.Status(c.UserContext(), c.Params("jobId")); err != nil {
		return response.NotFound(c, "Job not found")
	}
	return c.Next()
}

// Stream handles GET /ws/jobs/:jobId
func (h *ReelHandler) Stream(hub *ws.Hub) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		jobID := conn.Params("jobId")
		hub.HandleConnection(conn, jobID, func() (model.JobView, error) {
			job, err := h.service.Status(context.Background(), jobID)
			return job.View(), err
		})
	})
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
