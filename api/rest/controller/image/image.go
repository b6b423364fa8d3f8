package image

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pictoria-cloud/pictoria/api/middleware"
	"github.com/pictoria-cloud/pictoria/internal/generation"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
)

// Controller serves image generation and the gallery.
type Controller struct {
	generator *generation.Service
}

// New constructs an image controller.
func New(generator *generation.Service) *Controller {
	return &Controller{generator: generator}
}

// Generate runs one prediction against a trained model.
func (ctl *Controller) Generate(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	req := &generation.Request{}
	if err := c.Bind(req); err != nil {
		return echo.ErrBadRequest
	}
	req.UserID = userID

	images, err := ctl.generator.Generate(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrInvalidRequest):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "model and prompt are required"})
		case errors.Is(err, generation.ErrInsufficientCredits):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient credits"})
		default:
			log.Error("image generation failure", "user_id", userID, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to generate image"})
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{"data": images})
}

// List returns the user's generated images, newest first.
func (ctl *Controller) List(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	images, err := ctl.generator.List(c.Request().Context(), userID)
	if err != nil {
		log.Error("gallery failure", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data":  images,
		"count": len(images),
	})
}
