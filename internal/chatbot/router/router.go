// Package router builds the chatbot HTTP engine and registers its routes.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/handler"
	"github.com/ray729alp/mqa-chatbot/internal/chatbot/middleware"
)

// Config carries the router's middleware knobs.
type Config struct {
	// CORSOrigins enables CORS for the listed origins when non-empty. The
	// chat widget is normally served from the same origin, so the default
	// is no CORS headers at all.
	CORSOrigins []string
}

// New builds a gin engine with the service middleware chain and routes.
// Recovery sits after the access log so recovered panics are still logged
// as completed requests.
func New(h *handler.ChatHandler, cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestID())
	engine.Use(middleware.AccessLog("/healthz", "/metrics"))
	engine.Use(middleware.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		engine.Use(middleware.CORS(cfg.CORSOrigins))
	}

	Register(engine, h)

	return engine
}

// Register attaches the chat routes to the engine.
func Register(engine *gin.Engine, h *handler.ChatHandler) {
	engine.POST("/predict", h.Predict)
	engine.GET("/healthz", h.Healthz)
	engine.GET("/categories", h.Categories)
	engine.GET("/metrics", h.Metrics)
}
