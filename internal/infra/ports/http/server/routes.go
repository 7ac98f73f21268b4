package server

import (
	"github.com/labstack/echo/v4"

	"github.com/qrave1/roomspeak-mesh/internal/application/config"
	"github.com/qrave1/roomspeak-mesh/internal/infra/ports/http/handlers"
	"github.com/qrave1/roomspeak-mesh/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	presenceHandler *handlers.PresenceHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		if cfg.ControlJWTSecret != "" {
			v1.Use(middleware.JWTAuthMiddleware(cfg.ControlJWTSecret))
		}
		{
			v1.GET("/presence", presenceHandler.Roster)
			v1.POST("/mute", presenceHandler.SetMuted)
			v1.POST("/mute/toggle", presenceHandler.ToggleMuted)
			v1.POST("/join", presenceHandler.Join)
			v1.POST("/leave", presenceHandler.Leave)

			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/ws", wsHandler.Handle)
		}
	}

	return e
}
