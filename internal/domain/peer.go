package domain

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

type PeerState string

const (
	PeerStateIdle        PeerState = "idle"
	PeerStateNegotiating PeerState = "negotiating"
	PeerStateConnected   PeerState = "connected"
	PeerStateFailed      PeerState = "failed"
	PeerStateClosed      PeerState = "closed"
)

// допустимые переходы. Failed терминальное, но при уборке сессия все равно закрывается.
var peerTransitions = map[PeerState][]PeerState{
	PeerStateIdle:        {PeerStateNegotiating, PeerStateClosed},
	PeerStateNegotiating: {PeerStateConnected, PeerStateFailed, PeerStateClosed},
	PeerStateConnected:   {PeerStateFailed, PeerStateClosed},
	PeerStateFailed:      {PeerStateClosed},
}

func (s PeerState) CanTransition(to PeerState) bool {
	for _, next := range peerTransitions[s] {
		if next == to {
			return true
		}
	}

	return false
}

type PeerRole string

const (
	PeerRoleInitiator PeerRole = "initiator"
	PeerRoleResponder PeerRole = "responder"
)

const peerTaskQueueSize = 64

// PeerSession - локальное представление одного аудио соединения с удаленным участником.
//
// Все шаги согласования выполняются по очереди в собственной горутине сессии,
// между разными сессиями порядок не гарантируется.
type PeerSession struct {
	RemoteID string
	Conn     PeerConnection

	mu         sync.RWMutex
	remoteName string
	role       PeerRole
	state      PeerState
	offerSent  bool
	remoteSet  bool
	pending    []webrtc.ICECandidateInit
	sink       AudioSink

	tasks     chan func()
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewPeerSession(remoteID, remoteName string, role PeerRole, conn PeerConnection) *PeerSession {
	s := &PeerSession{
		RemoteID:   remoteID,
		Conn:       conn,
		remoteName: remoteName,
		role:       role,
		state:      PeerStateIdle,
		tasks:      make(chan func(), peerTaskQueueSize),
		closed:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	go s.run()

	return s
}

func (s *PeerSession) run() {
	defer close(s.done)

	for {
		select {
		case <-s.closed:
			return
		case task := <-s.tasks:
			if !s.Alive() {
				return
			}

			task()
		}
	}
}

// Enqueue ставит шаг согласования в очередь сессии. false - сессия уже закрыта.
func (s *PeerSession) Enqueue(task func()) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.tasks <- task:
		return true
	case <-s.closed:
		return false
	}
}

// Done закрывается, когда горутина сессии завершилась
func (s *PeerSession) Done() <-chan struct{} {
	return s.done
}

func (s *PeerSession) Alive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

func (s *PeerSession) State() PeerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

func (s *PeerSession) Role() PeerRole {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.role
}

func (s *PeerSession) SetRole(role PeerRole) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.role = role
}

func (s *PeerSession) RemoteName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.remoteName
}

func (s *PeerSession) SetRemoteName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remoteName = name
}

// Transition переводит сессию в новое состояние
func (s *PeerSession) Transition(to PeerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}

	s.state = to

	return nil
}

// MarkOfferSent фиксирует единственный исходящий offer за время жизни сессии
func (s *PeerSession) MarkOfferSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offerSent {
		return false
	}

	s.offerSent = true

	return true
}

// HasRemoteDescription - применен ли remote description
func (s *PeerSession) HasRemoteDescription() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.remoteSet
}

// BufferCandidate откладывает кандидата до установки remote description.
// false - описание уже установлено, кандидата нужно применять сразу.
func (s *PeerSession) BufferCandidate(candidate webrtc.ICECandidateInit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remoteSet {
		return false
	}

	s.pending = append(s.pending, candidate)

	return true
}

// MarkRemoteDescription отмечает установку remote description и отдает
// накопленных кандидатов в порядке получения
func (s *PeerSession) MarkRemoteDescription() []webrtc.ICECandidateInit {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remoteSet = true
	pending := s.pending
	s.pending = nil

	return pending
}

func (s *PeerSession) PendingCandidates() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.pending)
}

// AttachSink привязывает вывод входящего аудио. false - сессия уже закрыта.
func (s *PeerSession) AttachSink(sink AudioSink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == PeerStateClosed {
		return false
	}

	s.sink = sink

	return true
}

// Close закрывает соединение, отвязывает аудио и останавливает очередь.
// Повторный вызов ничего не делает и возвращает false.
func (s *PeerSession) Close() bool {
	closed := false

	s.closeOnce.Do(func() {
		closed = true

		s.mu.Lock()
		s.state = PeerStateClosed
		sink := s.sink
		s.sink = nil
		s.pending = nil
		s.mu.Unlock()

		close(s.closed)

		if sink != nil {
			_ = sink.Close()
		}

		if s.Conn != nil {
			_ = s.Conn.Close()
		}
	})

	return closed
}
