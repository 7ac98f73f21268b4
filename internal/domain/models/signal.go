package models

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalIceCandidate SignalKind = "ice-candidate"
)

// SignalMessage - документ коллекции signals
type SignalMessage struct {
	// ID назначается хранилищем
	ID string `json:"-"`

	Type      SignalKind                 `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	To        string                     `json:"to"`
	From      string                     `json:"from"`
	Timestamp time.Time                  `json:"timestamp"`
}

func (m SignalMessage) Validate() error {
	if m.To == "" || m.From == "" {
		return fmt.Errorf("signal %s: empty sender or recipient", m.Type)
	}

	switch m.Type {
	case SignalOffer, SignalAnswer:
		if m.SDP == nil || m.SDP.SDP == "" {
			return fmt.Errorf("signal %s: empty sdp", m.Type)
		}
	case SignalIceCandidate:
		if m.Candidate == nil {
			return fmt.Errorf("signal %s: empty candidate", m.Type)
		}
	default:
		return fmt.Errorf("unknown signal type %q", m.Type)
	}

	return nil
}
