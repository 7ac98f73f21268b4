package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/application/metric"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/memory"
)

const (
	defaultScreenName = "Anonymous"
	statusIdle        = "Not connected"
	statusLeft        = "Disconnected from voice chat"
)

// SessionUsecase - вход в комнату, связывание компонентов и полная уборка при выходе
type SessionUsecase interface {
	// JoinRoom возвращает ErrAlreadyJoined, если вход уже выполнен
	JoinRoom(ctx context.Context, roomID, screenName string) error
	// LeaveRoom можно вызывать повторно и без входа
	LeaveRoom(ctx context.Context)

	SetMuted(muted bool)
	ToggleMuted() bool

	Status() SessionStatus
	Sessions() []*domain.PeerSession
	ActiveSubscriptions() int
	Presence() PresenceUsecase
}

// roomSession - состояние одного входа в комнату, создается при входе и выбрасывается при выходе
type roomSession struct {
	roomID string
	self   models.Participant

	ctx    context.Context
	cancel context.CancelFunc

	peers   PeerUsecase
	tracker *MembershipTracker
}

type sessionUsecase struct {
	signaling SignalingUsecase
	media     MediaUsecase
	factory   domain.PeerConnectionFactory
	sinks     domain.AudioSinkFactory
	presence  PresenceUsecase

	subscriptions *subscriptionRegistry

	// opMu упорядочивает вход и выход
	opMu sync.Mutex

	mu      sync.RWMutex
	current *roomSession
	message string
}

func NewSessionUsecase(
	signaling SignalingUsecase,
	media MediaUsecase,
	factory domain.PeerConnectionFactory,
	sinks domain.AudioSinkFactory,
) SessionUsecase {
	s := &sessionUsecase{
		signaling:     signaling,
		media:         media,
		factory:       factory,
		sinks:         sinks,
		subscriptions: newSubscriptionRegistry(),
		message:       statusIdle,
	}

	s.presence = NewPresenceUsecase(s)

	return s
}

func (s *sessionUsecase) JoinRoom(ctx context.Context, roomID, screenName string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.joined() {
		return domain.NewError("join room", domain.ErrAlreadyJoined)
	}

	if screenName == "" {
		screenName = defaultScreenName
	}

	participantID := uuid.NewString()

	log := slog.With(
		slog.String(constant.RoomID, roomID),
		slog.String(constant.ParticipantID, participantID),
	)

	// без микрофона в комнату не входим
	if err := s.media.Acquire(ctx); err != nil {
		return err
	}

	self, err := s.signaling.PublishPresence(ctx, roomID, models.Participant{
		ID:         participantID,
		ScreenName: screenName,
		Active:     true,
	})
	if err != nil {
		s.media.Release()

		return err
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	rs := &roomSession{
		roomID: roomID,
		self:   self,
		ctx:    sessionCtx,
		cancel: cancel,
	}

	rs.peers = NewPeerUsecase(
		sessionCtx,
		roomID,
		self,
		s.factory,
		s.sinks,
		s.signaling,
		s.media,
		memory.NewPeerSessionRepository(),
		func(remoteID string) bool { return rs.tracker.IsPresent(remoteID) },
		s.presence.Notify,
	)
	rs.tracker = NewMembershipTracker(self.ID, memory.NewParticipantRepository(), rs.peers)

	unsubscribeMembers, err := s.signaling.SubscribeMembership(sessionCtx, roomID, rs.tracker.HandleChange)
	if err != nil {
		s.rollback(ctx, rs)

		return err
	}

	s.subscriptions.Add(unsubscribeMembers)

	unsubscribeSignals, err := s.signaling.SubscribeSignals(sessionCtx, roomID, self.ID, func(msg models.SignalMessage) {
		rs.peers.HandleSignal(msg)
		s.signaling.AckSignal(sessionCtx, roomID, msg.ID)
	})
	if err != nil {
		s.rollback(ctx, rs)

		return err
	}

	s.subscriptions.Add(unsubscribeSignals)

	s.mu.Lock()
	s.current = rs
	s.message = fmt.Sprintf("Connected to %s as %s", roomID, self.ScreenName)
	s.mu.Unlock()

	log.Info("joined room", slog.String(constant.ScreenName, self.ScreenName))

	s.presence.Notify()

	return nil
}

// rollback отменяет частично выполненный вход
func (s *sessionUsecase) rollback(ctx context.Context, rs *roomSession) {
	s.subscriptions.CancelAll()
	rs.peers.CloseAll()
	s.media.Release()

	if err := s.signaling.RetractPresence(ctx, rs.roomID, rs.self.ID); err != nil {
		slog.Warn("retract presence after failed join", slog.Any(constant.Error, err))
	}

	rs.cancel()
}

func (s *sessionUsecase) LeaveRoom(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	rs := s.current
	s.mu.RUnlock()

	if rs == nil {
		return
	}

	// порядок: подписки, сессии, микрофон, запись присутствия
	s.subscriptions.CancelAll()
	rs.peers.CloseAll()
	rs.tracker.Reset()
	s.media.Release()

	if err := s.signaling.RetractPresence(ctx, rs.roomID, rs.self.ID); err != nil {
		slog.Error(
			"retract presence",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, rs.roomID),
		)
	}

	rs.cancel()

	s.mu.Lock()
	s.current = nil
	s.message = statusLeft
	s.mu.Unlock()

	slog.Info("left room", slog.String(constant.RoomID, rs.roomID))

	s.presence.Notify()
}

func (s *sessionUsecase) SetMuted(muted bool) {
	s.media.SetMuted(muted)
	s.presence.Notify()
}

func (s *sessionUsecase) ToggleMuted() bool {
	muted := s.media.ToggleMuted()
	s.presence.Notify()

	return muted
}

func (s *sessionUsecase) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SessionStatus{Message: s.message}

	if s.current == nil {
		return status
	}

	status.Joined = true
	status.RoomID = s.current.roomID
	status.ParticipantID = s.current.self.ID
	status.ScreenName = s.current.self.ScreenName
	status.Muted = s.media.Muted()

	return status
}

func (s *sessionUsecase) Sessions() []*domain.PeerSession {
	s.mu.RLock()
	rs := s.current
	s.mu.RUnlock()

	if rs == nil {
		return nil
	}

	return rs.peers.Sessions()
}

func (s *sessionUsecase) ActiveSubscriptions() int {
	return s.subscriptions.Count()
}

func (s *sessionUsecase) Presence() PresenceUsecase {
	return s.presence
}

func (s *sessionUsecase) joined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current != nil
}

// subscriptionRegistry хранит функции отмены всех подписок текущего входа
type subscriptionRegistry struct {
	mu      sync.Mutex
	handles []domain.Unsubscribe
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{}
}

func (r *subscriptionRegistry) Add(unsubscribe domain.Unsubscribe) {
	r.mu.Lock()
	r.handles = append(r.handles, unsubscribe)
	count := len(r.handles)
	r.mu.Unlock()

	metric.SetStoreSubscriptionsActive(count)
}

// CancelAll вызывает каждую отмену и очищает список
func (r *subscriptionRegistry) CancelAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()

	for _, unsubscribe := range handles {
		unsubscribe()
	}

	metric.SetStoreSubscriptionsActive(0)
}

func (r *subscriptionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}
