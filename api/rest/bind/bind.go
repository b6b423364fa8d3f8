package bind

import (
	"github.com/labstack/echo/v4"
	"github.com/pictoria-cloud/pictoria/api/middleware"
	"github.com/pictoria-cloud/pictoria/api/rest/controller/image"
	"github.com/pictoria-cloud/pictoria/api/rest/controller/model"
	"github.com/pictoria-cloud/pictoria/api/rest/controller/train"
	"github.com/pictoria-cloud/pictoria/api/rest/controller/upload"
	webhookctl "github.com/pictoria-cloud/pictoria/api/rest/controller/webhook"
	"github.com/pictoria-cloud/pictoria/internal/generation"
	"github.com/pictoria-cloud/pictoria/internal/training"
	"github.com/pictoria-cloud/pictoria/internal/webhook"
)

// Services carries the constructed collaborators the REST
// surface is built from.
type Services struct {
	SessionSecret string
	Submitter     *training.Submitter
	Reconciler    *training.Reconciler
	Catalog       *training.Catalog
	Generator     *generation.Service
	Uploads       upload.Signer
	Verifier      *webhook.Verifier
}

// All binds the REST endpoints to the versioned endpoint group.
func All(g *echo.Group, s Services) {
	// Webhooks authenticate by signature, not session.
	g.POST("/webhooks/training", webhookctl.New(s.Verifier, s.Reconciler).Training)

	Authenticated(g.Group("", middleware.Session(s.SessionSecret)), s)
}

// Authenticated binds the session-guarded endpoints.
func Authenticated(g *echo.Group, s Services) {
	g.POST("/train", train.New(s.Submitter).Post)
	g.POST("/uploads", upload.New(s.Uploads).Post)

	// models
	{
		ctl := model.New(s.Catalog)
		g.GET("/models", ctl.List)
		g.DELETE("/models/:id", ctl.Delete)
	}

	// images
	{
		ctl := image.New(s.Generator)
		g.POST("/generate", ctl.Generate)
		g.GET("/images", ctl.List)
	}
}
