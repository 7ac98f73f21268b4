package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

type stubRemoteTrack struct{}

func (stubRemoteTrack) ID() string { return "audio" }

func (stubRemoteTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeAudio }

func (stubRemoteTrack) ReadRTP() (*rtp.Packet, error) { return nil, os.ErrClosed }

// writeOggFile записывает короткую Ogg/Opus запись через sink
func writeOggFile(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	sinks, err := NewSinkFactory(dir)
	require.NoError(t, err)

	sink, err := sinks.NewSink("bob", stubRemoteTrack{})
	require.NoError(t, err)

	for i := range 10 {
		err = sink.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i * 960),
				SSRC:           1,
			},
			Payload: silenceFrame,
		})
		require.NoError(t, err)
	}

	require.NoError(t, sink.Close())

	files, err := filepath.Glob(filepath.Join(dir, "bob-audio-*.ogg"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	return files[0]
}

func TestNewDevice(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{"default", "", nil},
		{"silence", "silence", nil},
		{"ogg", "ogg:/tmp/voice.ogg", nil},
		{"empty ogg path", "ogg:", domain.ErrDeviceNotFound},
		{"unknown", "alsa:hw0", domain.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, err := NewDevice(tt.value)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, device)
		})
	}
}

func TestSilenceDevice_Acquire(t *testing.T) {
	device, err := NewDevice(DeviceSilence)
	require.NoError(t, err)

	tracks, err := device.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	track := tracks[0]
	assert.Equal(t, webrtc.RTPCodecTypeAudio, track.Kind())
	assert.True(t, track.Enabled())

	track.SetEnabled(false)
	assert.False(t, track.Enabled())

	track.Stop()
	track.Stop()
}

func TestOggDevice_Acquire(t *testing.T) {
	device, err := NewDevice("ogg:" + writeOggFile(t))
	require.NoError(t, err)

	tracks, err := device.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	tracks[0].Stop()
}

func TestOggDevice_AcquireErrors(t *testing.T) {
	dir := t.TempDir()

	notOgg := filepath.Join(dir, "voice.txt")
	require.NoError(t, os.WriteFile(notOgg, []byte("not an ogg file"), 0o600))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"missing file", filepath.Join(dir, "missing.ogg"), domain.ErrDeviceNotFound},
		{"not ogg", notOgg, domain.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, err := NewDevice("ogg:" + tt.path)
			require.NoError(t, err)

			_, err = device.Acquire(context.Background(), DefaultConstraints())
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsMediaError(err))
		})
	}
}

func TestDevice_AcquireCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	device, err := NewDevice(DeviceSilence)
	require.NoError(t, err)

	_, err = device.Acquire(ctx, DefaultConstraints())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSinkFactory_Discard(t *testing.T) {
	sinks, err := NewSinkFactory("")
	require.NoError(t, err)

	sink, err := sinks.NewSink("bob", stubRemoteTrack{})
	require.NoError(t, err)

	require.NoError(t, sink.WriteRTP(&rtp.Packet{Payload: silenceFrame}))
	require.NoError(t, sink.Close())
}
