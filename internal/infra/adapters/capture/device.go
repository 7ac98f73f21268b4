package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

const (
	DeviceSilence = "silence"
	schemeOgg     = "ogg:"
)

// Constraints - параметры обработки звука при захвате
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints - захват аудио с подавлением эха, шума и автоусилением
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Device - источник исходящего аудио
type Device interface {
	Acquire(ctx context.Context, constraints Constraints) ([]domain.LocalTrack, error)
}

// NewDevice разбирает MEDIA_DEVICE: "silence" или "ogg:<path>"
func NewDevice(value string) (Device, error) {
	switch {
	case value == "" || value == DeviceSilence:
		return &silenceDevice{}, nil
	case strings.HasPrefix(value, schemeOgg):
		path := strings.TrimPrefix(value, schemeOgg)
		if path == "" {
			return nil, fmt.Errorf("%w: empty ogg path", domain.ErrDeviceNotFound)
		}

		return &oggDevice{path: path}, nil
	default:
		return nil, fmt.Errorf("%w: media device %q", domain.ErrUnsupported, value)
	}
}
