package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/infra/ports/http/dto"
	"github.com/qrave1/roomspeak-mesh/internal/usecase"
)

type PresenceHandler struct {
	sessionUsecase usecase.SessionUsecase
}

func NewPresenceHandler(sessionUsecase usecase.SessionUsecase) *PresenceHandler {
	return &PresenceHandler{sessionUsecase: sessionUsecase}
}

func (h *PresenceHandler) Roster(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessionUsecase.Presence().Roster())
}

func (h *PresenceHandler) SetMuted(c echo.Context) error {
	var req dto.MuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
	}

	h.sessionUsecase.SetMuted(req.Muted)

	return c.JSON(http.StatusOK, dto.MuteResponse{Muted: req.Muted})
}

func (h *PresenceHandler) ToggleMuted(c echo.Context) error {
	muted := h.sessionUsecase.ToggleMuted()

	return c.JSON(http.StatusOK, dto.MuteResponse{Muted: muted})
}

func (h *PresenceHandler) Join(c echo.Context) error {
	var req dto.JoinRequest
	if err := c.Bind(&req); err != nil || req.Room == "" {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
	}

	err := h.sessionUsecase.JoinRoom(c.Request().Context(), req.Room, req.Name)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, h.sessionUsecase.Presence().Roster())
	case errors.Is(err, domain.ErrAlreadyJoined):
		return c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Hint: domain.RemediationHint(err)})
	case domain.IsMediaError(err):
		return c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Error: err.Error(), Hint: domain.RemediationHint(err)})
	case errors.Is(err, domain.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error(), Hint: domain.RemediationHint(err)})
	default:
		slog.Error("join room", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "could not join room"})
	}
}

func (h *PresenceHandler) Leave(c echo.Context) error {
	h.sessionUsecase.LeaveRoom(c.Request().Context())

	return c.JSON(http.StatusOK, h.sessionUsecase.Presence().Roster())
}
