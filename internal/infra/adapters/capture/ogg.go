package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/rtc"
)

// oggDevice проигрывает Ogg/Opus файл по кругу вместо микрофона
type oggDevice struct {
	path string
}

func (d *oggDevice) Acquire(ctx context.Context, _ Constraints) ([]domain.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, file, err := d.open()
	if err != nil {
		return nil, err
	}

	track, err := newAudioTrack()
	if err != nil {
		_ = file.Close()

		return nil, err
	}

	go d.pump(track, reader, file)

	return []domain.LocalTrack{track}, nil
}

// open проверяет файл и отображает ошибки файловой системы на ошибки захвата
func (d *oggDevice) open() (*oggreader.OggReader, *os.File, error) {
	file, err := os.Open(d.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrDeviceNotFound, d.path)
	case errors.Is(err, os.ErrPermission):
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, d.path)
	case err != nil:
		return nil, nil, fmt.Errorf("open %s: %w", d.path, err)
	}

	reader, header, err := oggreader.NewWith(file)
	if err != nil {
		_ = file.Close()

		return nil, nil, fmt.Errorf("%w: %s is not an ogg/opus file: %w", domain.ErrUnsupported, d.path, err)
	}

	if header.SampleRate != rtc.OpusClockRate && header.SampleRate != 0 {
		slog.Warn(
			"ogg sample rate differs from opus clock rate",
			slog.String(constant.Device, d.path),
			slog.Any("sample_rate", header.SampleRate),
		)
	}

	return reader, file, nil
}

func (d *oggDevice) pump(track *audioTrack, reader *oggreader.OggReader, file *os.File) {
	defer func() {
		_ = file.Close()
	}()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	var lastGranule uint64

	for {
		select {
		case <-track.stopped():
			return
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			// файл закончился, начинаем сначала
			if _, err = file.Seek(0, io.SeekStart); err != nil {
				slog.Error("rewind ogg file", slog.Any(constant.Error, err), slog.String(constant.Device, d.path))
				return
			}

			if reader, _, err = oggreader.NewWith(file); err != nil {
				slog.Error("reopen ogg file", slog.Any(constant.Error, err), slog.String(constant.Device, d.path))
				return
			}

			lastGranule = 0

			continue
		}

		if err != nil {
			slog.Error("read ogg page", slog.Any(constant.Error, err), slog.String(constant.Device, d.path))
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples)/rtc.OpusClockRate*1000) * time.Millisecond

		// служебные страницы без звука
		if duration <= 0 {
			continue
		}

		if err = track.write(media.Sample{Data: page, Duration: duration}); err != nil {
			slog.Debug("write ogg sample", slog.Any(constant.Error, err))
		}
	}
}
