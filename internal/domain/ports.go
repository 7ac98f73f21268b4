package domain

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

// LocalTrack - исходящий аудио трек. Один и тот же трек добавляется во все Peer соединения.
type LocalTrack interface {
	webrtc.TrackLocal

	SetEnabled(enabled bool)
	Enabled() bool
	Stop()
}

// RemoteTrack - входящий трек удаленного участника
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, error)
}

// PeerConnection - непрозрачное real-time соединение с одним участником
type PeerConnection interface {
	AddTrack(track LocalTrack) error

	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnTrack(fn func(RemoteTrack))

	Close() error
}

type PeerConnectionFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

// AudioSink - вывод входящего аудио одного участника
type AudioSink interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

type AudioSinkFactory interface {
	NewSink(remoteID string, track RemoteTrack) (AudioSink, error)
}

// Unsubscribe отменяет подписку. Повторный вызов безопасен.
type Unsubscribe func()

// DocumentStore - внешнее publish/subscribe хранилище документов комнаты:
// коллекции users и signals
type DocumentStore interface {
	// UpsertUser возвращает сохраненную запись, joinedAt назначает хранилище
	UpsertUser(ctx context.Context, roomID string, p models.Participant) (models.Participant, error)
	DeleteUser(ctx context.Context, roomID, participantID string) error
	// WatchUsers сначала отдает текущий состав комнаты как added, затем живые изменения
	WatchUsers(ctx context.Context, roomID string, fn func(models.UserChange)) (Unsubscribe, error)

	AddSignal(ctx context.Context, roomID string, msg models.SignalMessage) (string, error)
	DeleteSignal(ctx context.Context, roomID, signalID string) error
	// WatchSignals отдает только сообщения с to == recipientID
	WatchSignals(ctx context.Context, roomID, recipientID string, fn func(models.SignalMessage)) (Unsubscribe, error)

	Close() error
}
