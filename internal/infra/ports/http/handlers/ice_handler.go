package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/roomspeak-mesh/internal/application/config"
)

type IceHandler struct {
	cfg *config.Config
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg}
}

// IceServers отдает ICE сервера, с которыми создаются Peer соединения
func (h *IceHandler) IceServers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cfg.ICE.Servers())
}
