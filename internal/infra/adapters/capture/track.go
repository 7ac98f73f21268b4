package capture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/rtc"
)

// audioTrack - исходящий Opus трек. В выключенном состоянии сэмплы пропускаются,
// сам трек остается в соединениях.
type audioTrack struct {
	*webrtc.TrackLocalStaticSample

	enabled atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
}

func newAudioTrack() (*audioTrack, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(rtc.OpusCapability, "audio", "roomspeak-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("create local audio track: %w", err)
	}

	t := &audioTrack{
		TrackLocalStaticSample: sample,
		stop:                   make(chan struct{}),
	}
	t.enabled.Store(true)

	return t, nil
}

func (t *audioTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *audioTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *audioTrack) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

func (t *audioTrack) stopped() <-chan struct{} {
	return t.stop
}

func (t *audioTrack) write(sample media.Sample) error {
	if !t.Enabled() {
		return nil
	}

	return t.WriteSample(sample)
}
