package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/application/metric"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/memory"
)

const (
	unknownUserName = "Unknown User"

	// столько сессия, созданная входящим offer, ждет записи отправителя в users
	orphanSessionGrace = 10 * time.Second
)

// PeerUsecase управляет Peer сессиями одного входа в комнату
type PeerUsecase interface {
	MembershipHandler

	HandleSignal(msg models.SignalMessage)
	CloseAll()
	Sessions() []*domain.PeerSession
}

type peerUsecase struct {
	ctx    context.Context
	roomID string
	self   models.Participant

	factory   domain.PeerConnectionFactory
	sinks     domain.AudioSinkFactory
	signaling SignalingUsecase
	media     MediaUsecase
	sessions  memory.PeerSessionRepository

	// isMember сообщает, видит ли трекер участника в комнате
	isMember    func(remoteID string) bool
	orphanGrace time.Duration

	onChange func()
}

// NewPeerUsecase - ctx ограничивает время жизни входа в комнату,
// self - сохраненная хранилищем запись локального участника.
// isMember == nil отключает закрытие сессий отправителей, которых нет в комнате.
func NewPeerUsecase(
	ctx context.Context,
	roomID string,
	self models.Participant,
	factory domain.PeerConnectionFactory,
	sinks domain.AudioSinkFactory,
	signaling SignalingUsecase,
	media MediaUsecase,
	sessions memory.PeerSessionRepository,
	isMember func(remoteID string) bool,
	onChange func(),
) PeerUsecase {
	if onChange == nil {
		onChange = func() {}
	}

	return &peerUsecase{
		ctx:       ctx,
		roomID:    roomID,
		self:      self,
		factory:   factory,
		sinks:     sinks,
		signaling: signaling,
		media:     media,
		sessions:    sessions,
		isMember:    isMember,
		orphanGrace: orphanSessionGrace,
		onChange:    onChange,
	}
}

// OnPeerJoined создает сессию для нового участника. Offer отправляет тот,
// кто вошел в комнату раньше, второй участник ждет его в Idle.
func (p *peerUsecase) OnPeerJoined(remote models.Participant) {
	if p.ctx.Err() != nil {
		return
	}

	role := domain.PeerRoleResponder
	if p.self.JoinedBefore(remote) {
		role = domain.PeerRoleInitiator
	}

	session, created, err := p.sessions.GetOrCreate(remote.ID, func() (*domain.PeerSession, error) {
		return p.newSession(remote.ID, remote.ScreenName, role)
	})
	if errors.Is(err, memory.ErrRepositoryClosed) {
		slog.Debug("discard join after leave", slog.String(constant.RemoteID, remote.ID))
		return
	}

	if err != nil {
		slog.Error(
			"create peer session",
			slog.Any(constant.Error, err),
			slog.String(constant.RemoteID, remote.ID),
		)

		return
	}

	if !created {
		// сессия уже создана входящим offer
		session.SetRemoteName(remote.ScreenName)
		p.onChange()

		return
	}

	p.sessionsChanged()

	if role == domain.PeerRoleInitiator {
		session.Enqueue(func() { p.sendOffer(session) })
	}
}

func (p *peerUsecase) OnPeerLeft(participantID string) {
	session, ok := p.sessions.Remove(participantID)
	if !ok {
		return
	}

	p.closeSession(session)
	p.sessionsChanged()
}

func (p *peerUsecase) OnPeerUpdated(remote models.Participant) {
	session, ok := p.sessions.Get(remote.ID)
	if !ok {
		return
	}

	session.SetRemoteName(remote.ScreenName)
	p.onChange()
}

func (p *peerUsecase) HandleSignal(msg models.SignalMessage) {
	if msg.To != p.self.ID || msg.From == p.self.ID {
		return
	}

	switch msg.Type {
	case models.SignalOffer:
		p.handleOffer(msg)
	case models.SignalAnswer:
		p.handleAnswer(msg)
	case models.SignalIceCandidate:
		p.handleCandidate(msg)
	}
}

// CloseAll закрывает все сессии. После него новые сессии не создаются.
func (p *peerUsecase) CloseAll() {
	sessions := p.sessions.Close()

	for _, session := range sessions {
		p.closeSession(session)
	}

	p.sessionsChanged()
}

func (p *peerUsecase) Sessions() []*domain.PeerSession {
	return p.sessions.List()
}

func (p *peerUsecase) newSession(remoteID, remoteName string, role domain.PeerRole) (*domain.PeerSession, error) {
	conn, err := p.factory.NewPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNegotiationFailed, err)
	}

	for _, track := range p.media.Tracks() {
		if err = conn.AddTrack(track); err != nil {
			_ = conn.Close()

			return nil, fmt.Errorf("%w: add local track: %w", domain.ErrNegotiationFailed, err)
		}
	}

	session := domain.NewPeerSession(remoteID, remoteName, role, conn)

	conn.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		// через очередь сессии, чтобы кандидаты уходили после offer/answer
		session.Enqueue(func() {
			p.signaling.SendSignal(p.ctx, p.roomID, models.SignalMessage{
				Type:      models.SignalIceCandidate,
				Candidate: &candidate,
				To:        remoteID,
				From:      p.self.ID,
				Timestamp: time.Now().UTC(),
			})
		})
	})

	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug(
			"peer connection state",
			slog.String(constant.RemoteID, remoteID),
			slog.String(constant.State, state.String()),
		)

		switch state {
		case webrtc.PeerConnectionStateConnected:
			session.Enqueue(func() { p.transition(session, domain.PeerStateConnected) })
		case webrtc.PeerConnectionStateFailed:
			session.Enqueue(func() {
				p.fail(session, "transport", errors.New("peer connection failed"))
			})
		}
	})

	conn.OnTrack(func(track domain.RemoteTrack) {
		go p.pumpRemoteAudio(session, track)
	})

	slog.Info(
		"peer session created",
		slog.String(constant.RemoteID, remoteID),
		slog.String(constant.Role, string(role)),
	)

	return session, nil
}

func (p *peerUsecase) sendOffer(session *domain.PeerSession) {
	if !session.MarkOfferSent() {
		return
	}

	// встречный offer уже перевел сессию в Negotiating
	if session.State() != domain.PeerStateIdle {
		return
	}

	if !p.transition(session, domain.PeerStateNegotiating) {
		return
	}

	offer, err := session.Conn.CreateOffer()
	if err != nil {
		p.fail(session, "create offer", err)
		return
	}

	if err = session.Conn.SetLocalDescription(offer); err != nil {
		p.fail(session, "set local description", err)
		return
	}

	// участник мог выйти, пока создавался offer
	if !session.Alive() {
		return
	}

	p.signaling.SendSignal(p.ctx, p.roomID, models.SignalMessage{
		Type:      models.SignalOffer,
		SDP:       localDescription(session.Conn, offer),
		To:        session.RemoteID,
		From:      p.self.ID,
		Timestamp: time.Now().UTC(),
	})
}

func (p *peerUsecase) handleOffer(msg models.SignalMessage) {
	if p.ctx.Err() != nil {
		return
	}

	session, created, err := p.sessions.GetOrCreate(msg.From, func() (*domain.PeerSession, error) {
		return p.newSession(msg.From, unknownUserName, domain.PeerRoleResponder)
	})
	if errors.Is(err, memory.ErrRepositoryClosed) {
		slog.Debug("discard offer after leave", slog.String(constant.RemoteID, msg.From))
		return
	}

	if err != nil {
		slog.Error(
			"create peer session for offer",
			slog.Any(constant.Error, err),
			slog.String(constant.RemoteID, msg.From),
		)

		return
	}

	if created {
		p.sessionsChanged()
		p.watchOrphan(session)
	}

	session.Enqueue(func() { p.answerOffer(session, msg) })
}

// watchOrphan закрывает сессию, если отправитель offer так и не появился в users.
// Так бывает, когда он вышел раньше, чем пришел наш снимок участников.
func (p *peerUsecase) watchOrphan(session *domain.PeerSession) {
	if p.isMember == nil || p.isMember(session.RemoteID) {
		return
	}

	time.AfterFunc(p.orphanGrace, func() {
		if p.ctx.Err() != nil {
			return
		}

		// проверка под блокировкой репозитория: OnPeerJoined либо уже видит сессию
		// присутствующего участника, либо создаст новую после удаления этой
		orphan, ok := p.sessions.RemoveIf(session.RemoteID, func(current *domain.PeerSession) bool {
			return current == session && !p.isMember(session.RemoteID)
		})
		if !ok {
			return
		}

		slog.Info("close session of absent peer", slog.String(constant.RemoteID, orphan.RemoteID))

		p.closeSession(orphan)
		p.sessionsChanged()
	})
}

func (p *peerUsecase) answerOffer(session *domain.PeerSession, msg models.SignalMessage) {
	if state := session.State(); state != domain.PeerStateIdle {
		slog.Info(
			"ignore duplicate offer",
			slog.String(constant.RemoteID, session.RemoteID),
			slog.String(constant.State, string(state)),
		)

		return
	}

	session.SetRole(domain.PeerRoleResponder)

	if !p.transition(session, domain.PeerStateNegotiating) {
		return
	}

	if err := session.Conn.SetRemoteDescription(*msg.SDP); err != nil {
		p.fail(session, "set remote description", err)
		return
	}

	p.flushCandidates(session)

	answer, err := session.Conn.CreateAnswer()
	if err != nil {
		p.fail(session, "create answer", err)
		return
	}

	if err = session.Conn.SetLocalDescription(answer); err != nil {
		p.fail(session, "set local description", err)
		return
	}

	if !session.Alive() {
		return
	}

	p.signaling.SendSignal(p.ctx, p.roomID, models.SignalMessage{
		Type:      models.SignalAnswer,
		SDP:       localDescription(session.Conn, answer),
		To:        session.RemoteID,
		From:      p.self.ID,
		Timestamp: time.Now().UTC(),
	})
}

func (p *peerUsecase) handleAnswer(msg models.SignalMessage) {
	session, ok := p.sessions.Get(msg.From)
	if !ok {
		slog.Debug("discard answer for unknown peer", slog.String(constant.RemoteID, msg.From))
		return
	}

	session.Enqueue(func() {
		if session.State() != domain.PeerStateNegotiating ||
			session.Role() != domain.PeerRoleInitiator ||
			session.HasRemoteDescription() {
			slog.Info("ignore unexpected answer", slog.String(constant.RemoteID, session.RemoteID))
			return
		}

		if err := session.Conn.SetRemoteDescription(*msg.SDP); err != nil {
			p.fail(session, "set remote description", err)
			return
		}

		p.flushCandidates(session)
	})
}

func (p *peerUsecase) handleCandidate(msg models.SignalMessage) {
	session, ok := p.sessions.Get(msg.From)
	if !ok {
		slog.Debug("discard candidate for unknown peer", slog.String(constant.RemoteID, msg.From))
		return
	}

	candidate := *msg.Candidate

	session.Enqueue(func() {
		// до установки remote description кандидат откладывается
		if session.BufferCandidate(candidate) {
			return
		}

		p.addCandidate(session, candidate)
	})
}

func (p *peerUsecase) flushCandidates(session *domain.PeerSession) {
	for _, candidate := range session.MarkRemoteDescription() {
		p.addCandidate(session, candidate)
	}
}

func (p *peerUsecase) addCandidate(session *domain.PeerSession, candidate webrtc.ICECandidateInit) {
	if err := session.Conn.AddICECandidate(candidate); err != nil {
		slog.Warn(
			"add ice candidate",
			slog.Any(constant.Error, err),
			slog.String(constant.RemoteID, session.RemoteID),
		)
	}
}

func (p *peerUsecase) pumpRemoteAudio(session *domain.PeerSession, track domain.RemoteTrack) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}

	sink, err := p.sinks.NewSink(session.RemoteID, track)
	if err != nil {
		slog.Error(
			"create audio sink",
			slog.Any(constant.Error, err),
			slog.String(constant.RemoteID, session.RemoteID),
		)

		return
	}

	if !session.AttachSink(sink) {
		_ = sink.Close()
		return
	}

	for {
		pkt, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && session.Alive() {
				slog.Error(
					"RTP read error",
					slog.Any(constant.Error, err),
					slog.String(constant.RemoteID, session.RemoteID),
				)
			}

			return
		}

		if !session.Alive() {
			return
		}

		if err = sink.WriteRTP(pkt); err != nil {
			slog.Debug("write remote audio", slog.Any(constant.Error, err))
		}
	}
}

// transition ничего не делает для закрытой сессии
func (p *peerUsecase) transition(session *domain.PeerSession, to domain.PeerState) bool {
	if !session.Alive() {
		return false
	}

	if err := session.Transition(to); err != nil {
		slog.Warn(
			"peer session transition",
			slog.Any(constant.Error, err),
			slog.String(constant.RemoteID, session.RemoteID),
		)

		return false
	}

	metric.RecordPeerTransition(string(to))

	slog.Info(
		"peer session state",
		slog.String(constant.RemoteID, session.RemoteID),
		slog.String(constant.State, string(to)),
	)

	p.onChange()

	return true
}

// fail переводит сессию в Failed. Ошибка не выходит за пределы сессии.
func (p *peerUsecase) fail(session *domain.PeerSession, step string, err error) {
	if !session.Alive() {
		return
	}

	slog.Error(
		"peer negotiation",
		slog.Any(constant.Error, fmt.Errorf("%w: %s: %w", domain.ErrNegotiationFailed, step, err)),
		slog.String(constant.RemoteID, session.RemoteID),
	)

	p.transition(session, domain.PeerStateFailed)
}

func (p *peerUsecase) closeSession(session *domain.PeerSession) {
	if !session.Close() {
		return
	}

	metric.RecordPeerTransition(string(domain.PeerStateClosed))

	slog.Info("peer session closed", slog.String(constant.RemoteID, session.RemoteID))
}

func (p *peerUsecase) sessionsChanged() {
	metric.SetPeerSessionsActive(p.sessions.Count())
	p.onChange()
}

func localDescription(conn domain.PeerConnection, fallback webrtc.SessionDescription) *webrtc.SessionDescription {
	if desc := conn.LocalDescription(); desc != nil {
		return desc
	}

	return &fallback
}
