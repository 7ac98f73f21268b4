package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/capture"
)

const testRoom = "lobby"

var errConnClosed = errors.New("connection closed")

type fakeConn struct {
	mu sync.Mutex

	tracks     []domain.LocalTrack
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	remoteSets int
	candidates []webrtc.ICECandidateInit
	closed     bool

	// offerGate блокирует CreateOffer до закрытия
	offerGate    chan struct{}
	offerEntered chan struct{}
	enterOnce    sync.Once

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
}

func (c *fakeConn) AddTrack(track domain.LocalTrack) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tracks = append(c.tracks, track)

	return nil
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	if c.offerEntered != nil {
		c.enterOnce.Do(func() { close(c.offerEntered) })
	}

	if c.offerGate != nil {
		<-c.offerGate
	}

	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}

	c.local = &desc

	return nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}

	c.remote = &desc
	c.remoteSets++

	return nil
}

func (c *fakeConn) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.local
}

func (c *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remote == nil {
		return errors.New("remote description is not set")
	}

	c.candidates = append(c.candidates, candidate)

	return nil
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onICE = fn
}

func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onState = fn
}

func (c *fakeConn) OnTrack(func(domain.RemoteTrack)) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

func (c *fakeConn) setState(state webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()

	fn(state)
}

func (c *fakeConn) emitCandidate(candidate webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()

	fn(candidate)
}

func (c *fakeConn) appliedCandidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.candidates))
	for _, candidate := range c.candidates {
		out = append(out, candidate.Candidate)
	}

	return out
}

func (c *fakeConn) remoteDescriptionSets() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.remoteSets
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *fakeConn) localTracks() []domain.LocalTrack {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]domain.LocalTrack(nil), c.tracks...)
}

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeConn

	// prepare настраивает очередное соединение
	prepare func(*fakeConn)
}

func (f *fakeFactory) NewPeerConnection() (domain.PeerConnection, error) {
	conn := &fakeConn{}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.prepare != nil {
		f.prepare(conn)
	}

	f.conns = append(f.conns, conn)

	return conn, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.conns)
}

func (f *fakeFactory) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.conns[i]
}

type fakeTrack struct {
	*webrtc.TrackLocalStaticSample

	enabled atomic.Bool
	stopped atomic.Bool
}

func newFakeTrack(t *testing.T) *fakeTrack {
	t.Helper()

	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"test",
	)
	require.NoError(t, err)

	track := &fakeTrack{TrackLocalStaticSample: sample}
	track.enabled.Store(true)

	return track
}

func (t *fakeTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *fakeTrack) Enabled() bool { return t.enabled.Load() }

func (t *fakeTrack) Stop() { t.stopped.Store(true) }

type fakeDevice struct {
	tracks []domain.LocalTrack
	err    error

	acquired atomic.Int32
}

func (d *fakeDevice) Acquire(context.Context, capture.Constraints) ([]domain.LocalTrack, error) {
	if d.err != nil {
		return nil, d.err
	}

	d.acquired.Add(1)

	return d.tracks, nil
}

type discardSinks struct{}

func (discardSinks) NewSink(string, domain.RemoteTrack) (domain.AudioSink, error) {
	return discardSink{}, nil
}

type discardSink struct{}

func (discardSink) WriteRTP(*rtp.Packet) error { return nil }

func (discardSink) Close() error { return nil }

// signalCollector собирает сигналы, адресованные одному участнику
type signalCollector struct {
	mu       sync.Mutex
	messages []models.SignalMessage
}

func collectSignals(t *testing.T, store domain.DocumentStore, recipientID string) *signalCollector {
	t.Helper()

	collector := &signalCollector{}

	unsubscribe, err := store.WatchSignals(context.Background(), testRoom, recipientID, func(msg models.SignalMessage) {
		collector.mu.Lock()
		collector.messages = append(collector.messages, msg)
		collector.mu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(unsubscribe)

	return collector
}

func (c *signalCollector) of(kind models.SignalKind) []models.SignalMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.SignalMessage
	for _, msg := range c.messages {
		if msg.Type == kind {
			out = append(out, msg)
		}
	}

	return out
}

func (c *signalCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.messages)
}
