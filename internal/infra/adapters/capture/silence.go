package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

const frameDuration = 20 * time.Millisecond

// opus кадр тишины 20мс
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

type silenceDevice struct{}

func (d *silenceDevice) Acquire(ctx context.Context, _ Constraints) ([]domain.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	track, err := newAudioTrack()
	if err != nil {
		return nil, err
	}

	go func() {
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()

		for {
			select {
			case <-track.stopped():
				return
			case <-ticker.C:
				if err := track.write(media.Sample{Data: silenceFrame, Duration: frameDuration}); err != nil {
					slog.Debug("write silence", slog.Any(constant.Error, err))
				}
			}
		}
	}()

	return []domain.LocalTrack{track}, nil
}
