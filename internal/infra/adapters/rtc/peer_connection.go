package rtc

import (
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

type peerConnection struct {
	pc *webrtc.PeerConnection
}

func (c *peerConnection) AddTrack(track domain.LocalTrack) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}

	// RTCP нужно вычитывать, иначе интерцепторы не работают
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	return nil
}

func (c *peerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *peerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *peerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *peerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *peerConnection) LocalDescription() *webrtc.SessionDescription {
	return c.pc.LocalDescription()
}

func (c *peerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *peerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil - сбор кандидатов завершен
		if candidate == nil {
			return
		}

		fn(candidate.ToJSON())
	})
}

func (c *peerConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(fn)
}

func (c *peerConnection) OnTrack(fn func(domain.RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(&remoteTrack{track: track})
	})
}

func (c *peerConnection) Close() error {
	return c.pc.Close()
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (t *remoteTrack) ID() string {
	return t.track.ID()
}

func (t *remoteTrack) Kind() webrtc.RTPCodecType {
	return t.track.Kind()
}

func (t *remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()

	return pkt, err
}
