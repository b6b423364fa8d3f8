package train

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pictoria-cloud/pictoria/api/middleware"
	"github.com/pictoria-cloud/pictoria/internal/training"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
)

// Controller handles training submissions.
type Controller struct {
	submitter *training.Submitter
}

// New constructs a train controller.
func New(submitter *training.Submitter) *Controller {
	return &Controller{submitter: submitter}
}

// PostResponse is returned on a successful submission.
type PostResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status"`
}

// Post starts a model training run from a multipart form with
// fileKey, modelName and gender fields.
func (ctl *Controller) Post(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	req := &training.StartRequest{
		UserID:    userID,
		ModelName: c.FormValue("modelName"),
		Gender:    c.FormValue("gender"),
		FileKey:   c.FormValue("fileKey"),
	}

	if req.ModelName == "" || req.FileKey == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "modelName and fileKey are required",
		})
	}

	model, err := ctl.submitter.Start(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, training.ErrInvalidRequest):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid training request"})
		case errors.Is(err, training.ErrInsufficientCredits):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient credits"})
		default:
			log.Error("training submission failure", "user_id", userID, "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start model training"})
		}
	}

	return c.JSON(http.StatusCreated, PostResponse{
		Success: true,
		ID:      model.ID.String(),
		Status:  string(model.Status),
	})
}
