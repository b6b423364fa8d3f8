package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pictoria-cloud/pictoria/internal/training"
	"github.com/pictoria-cloud/pictoria/internal/webhook"
	"github.com/pictoria-cloud/pictoria/pkg/log"
	"github.com/pkg/errors"
)

// Controller handles the training provider's status callbacks.
type Controller struct {
	verifier   *webhook.Verifier
	reconciler *training.Reconciler
}

// New constructs a webhook controller.
func New(verifier *webhook.Verifier, reconciler *training.Reconciler) *Controller {
	return &Controller{verifier: verifier, reconciler: reconciler}
}

// Training processes one callback. The delivery is authenticated
// by its signature headers; the correlation identifiers come from
// the query string the submitter embedded in the callback URL,
// never from the body.
func (ctl *Controller) Training(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.ErrBadRequest
	}

	valid := ctl.verifier.Verify(
		c.Request().Context(),
		c.Request().Header.Get("webhook-id"),
		c.Request().Header.Get("webhook-timestamp"),
		c.Request().Header.Get("webhook-signature"),
		body,
	)
	if !valid {
		// Rejected without detail; this endpoint is probed.
		return echo.ErrUnauthorized
	}

	userID, err := uuid.Parse(c.QueryParam("userId"))
	if err != nil {
		return echo.ErrBadRequest
	}

	var event training.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return echo.ErrBadRequest
	}

	delivery := &training.Delivery{
		UserID:    userID,
		ModelName: c.QueryParam("modelName"),
		FileName:  c.QueryParam("fileName"),
		Event:     event,
	}

	if err := ctl.reconciler.Apply(c.Request().Context(), delivery); err != nil {
		if errors.Is(err, training.ErrUserNotFound) {
			return echo.ErrNotFound
		}
		log.Error("webhook reconciliation failure", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	return c.String(http.StatusOK, "OK")
}
