package upload

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pictoria-cloud/pictoria/api/middleware"
	"github.com/pictoria-cloud/pictoria/pkg/log"
)

// Signer mints signed upload URLs for training archives.
type Signer interface {
	SignedUploadURL(ctx context.Context, key string) (string, error)
}

// Controller issues upload targets for training data.
type Controller struct {
	signer Signer
}

// New constructs an upload controller.
func New(signer Signer) *Controller {
	return &Controller{signer: signer}
}

// PostRequest names the archive being uploaded.
type PostRequest struct {
	FileName string `json:"fileName"`
}

// PostResponse carries the signed upload URL and the object key
// to reference in the subsequent training submission.
type PostResponse struct {
	SignedURL string `json:"signedUrl"`
	Key       string `json:"key"`
}

// Post mints a signed upload URL under the user's own prefix.
func (ctl *Controller) Post(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	req := &PostRequest{}
	if err := c.Bind(req); err != nil {
		return echo.ErrBadRequest
	}

	name := path.Base(strings.TrimSpace(req.FileName))
	if name == "" || name == "." || name == "/" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "fileName is required"})
	}

	key := fmt.Sprintf("%s/%d_%s", userID, time.Now().UnixMilli(), name)

	signed, err := ctl.signer.SignedUploadURL(c.Request().Context(), key)
	if err != nil {
		log.Error("upload url failure", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to sign upload"})
	}

	return c.JSON(http.StatusCreated, PostResponse{
		SignedURL: signed,
		Key:       key,
	})
}
