package metric

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthReport - состояние участника комнаты для /health
type HealthReport struct {
	Joined        bool   `json:"joined"`
	Room          string `json:"room,omitempty"`
	PeerSessions  int    `json:"peer_sessions"`
	Subscriptions int    `json:"subscriptions"`
}

// NewServer создает сервер метрик. report вызывается на каждый запрос /health.
func NewServer(report func() HealthReport) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		health := report()

		// вне комнаты процесс бесполезен, но жив
		status := http.StatusOK
		if !health.Joined {
			status = http.StatusServiceUnavailable
		}

		return c.JSON(status, health)
	})

	return e
}
