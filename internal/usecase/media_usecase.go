package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/capture"
)

// MediaUsecase - локальный захват аудио и состояние mute.
// Все Peer сессии используют один и тот же набор треков.
type MediaUsecase interface {
	Acquire(ctx context.Context) error
	SetMuted(muted bool)
	ToggleMuted() bool
	Muted() bool
	Tracks() []domain.LocalTrack
	// Release останавливает треки. Повторный вызов ничего не делает.
	Release()
}

type mediaUsecase struct {
	device capture.Device

	mu     sync.RWMutex
	tracks []domain.LocalTrack
	muted  bool
}

func NewMediaUsecase(device capture.Device) MediaUsecase {
	return &mediaUsecase{device: device}
}

func (m *mediaUsecase) Acquire(ctx context.Context) error {
	tracks, err := m.device.Acquire(ctx, capture.DefaultConstraints())
	if err != nil {
		return domain.NewError("acquire media", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// прошлый захват, если его не освободили
	for _, track := range m.tracks {
		track.Stop()
	}

	m.tracks = tracks
	m.muted = false

	for _, track := range m.tracks {
		track.SetEnabled(true)
	}

	slog.Info("local media acquired", slog.Int("tracks", len(tracks)))

	return nil
}

func (m *mediaUsecase) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setMuted(muted)
}

func (m *mediaUsecase) ToggleMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setMuted(!m.muted)

	return m.muted
}

func (m *mediaUsecase) setMuted(muted bool) {
	m.muted = muted

	for _, track := range m.tracks {
		track.SetEnabled(!muted)
	}

	slog.Info("local media muted", slog.Bool(constant.Muted, muted))
}

func (m *mediaUsecase) Muted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.muted
}

func (m *mediaUsecase) Tracks() []domain.LocalTrack {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tracks := make([]domain.LocalTrack, len(m.tracks))
	copy(tracks, m.tracks)

	return tracks
}

func (m *mediaUsecase) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tracks == nil {
		return
	}

	for _, track := range m.tracks {
		track.Stop()
	}

	m.tracks = nil
	m.muted = false

	slog.Info("local media released")
}
