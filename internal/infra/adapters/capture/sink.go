package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/rtc"
)

// NewSinkFactory - без каталога входящее аудио только вычитывается
func NewSinkFactory(outputDir string) (domain.AudioSinkFactory, error) {
	if outputDir == "" {
		return discardSinkFactory{}, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio output dir: %w", err)
	}

	return &oggSinkFactory{dir: outputDir}, nil
}

type discardSinkFactory struct{}

func (discardSinkFactory) NewSink(string, domain.RemoteTrack) (domain.AudioSink, error) {
	return discardSink{}, nil
}

type discardSink struct{}

func (discardSink) WriteRTP(*rtp.Packet) error { return nil }

func (discardSink) Close() error { return nil }

// oggSinkFactory пишет звук каждого участника в отдельный Ogg файл
type oggSinkFactory struct {
	dir string
}

func (f *oggSinkFactory) NewSink(remoteID string, track domain.RemoteTrack) (domain.AudioSink, error) {
	name := fmt.Sprintf("%s-%s-%d.ogg", remoteID, track.ID(), time.Now().Unix())

	writer, err := oggwriter.New(filepath.Join(f.dir, name), rtc.OpusClockRate, rtc.OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("create ogg sink: %w", err)
	}

	return writer, nil
}
