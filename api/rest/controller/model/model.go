package model

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pictoria-cloud/pictoria/api/middleware"
	"github.com/pictoria-cloud/pictoria/internal/training"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
)

// Controller serves the user's trained models.
type Controller struct {
	catalog *training.Catalog
}

// New constructs a model controller.
func New(catalog *training.Catalog) *Controller {
	return &Controller{catalog: catalog}
}

// List returns the user's models, newest first.
func (ctl *Controller) List(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	list, err := ctl.catalog.List(c.Request().Context(), userID)
	if err != nil {
		log.Error("model list failure", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data":  list,
		"count": len(list),
	})
}

// Delete removes one of the user's models, provider-side
// artifacts first.
func (ctl *Controller) Delete(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest
	}

	if err := ctl.catalog.Delete(c.Request().Context(), userID, id); err != nil {
		switch {
		case errors.Is(err, training.ErrModelNotFound):
			return echo.ErrNotFound
		default:
			log.Error("model deletion failure", "user_id", userID, "id", id, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete model"})
		}
	}

	return c.NoContent(http.StatusNoContent)
}
