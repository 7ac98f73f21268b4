package memory

import (
	"errors"
	"sort"
	"sync"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

// ErrRepositoryClosed - репозиторий закрыт, новые сессии не создаются
var ErrRepositoryClosed = errors.New("peer session repository closed")

type PeerSessionRepository interface {
	// GetOrCreate атомарно возвращает существующую сессию или создает новую.
	// created == true только для новой сессии. После Close возвращает ErrRepositoryClosed.
	GetOrCreate(remoteID string, create func() (*domain.PeerSession, error)) (session *domain.PeerSession, created bool, err error)
	Get(remoteID string) (*domain.PeerSession, bool)
	Remove(remoteID string) (*domain.PeerSession, bool)
	// RemoveIf удаляет сессию, если match вернул true. match вызывается под блокировкой.
	RemoveIf(remoteID string, match func(*domain.PeerSession) bool) (*domain.PeerSession, bool)
	// Close забирает все сессии и запрещает создание новых
	Close() []*domain.PeerSession
	List() []*domain.PeerSession
	Count() int
}

type peerSessionRepository struct {
	// sessions хранит map[remote_id]*PeerSession
	sessions map[string]*domain.PeerSession
	closed   bool
	mu       sync.RWMutex
}

func NewPeerSessionRepository() PeerSessionRepository {
	return &peerSessionRepository{
		sessions: make(map[string]*domain.PeerSession),
	}
}

func (r *peerSessionRepository) GetOrCreate(
	remoteID string,
	create func() (*domain.PeerSession, error),
) (*domain.PeerSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrRepositoryClosed
	}

	if session, ok := r.sessions[remoteID]; ok {
		return session, false, nil
	}

	session, err := create()
	if err != nil {
		return nil, false, err
	}

	r.sessions[remoteID] = session

	return session, true, nil
}

func (r *peerSessionRepository) Get(remoteID string) (*domain.PeerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[remoteID]
	return session, ok
}

func (r *peerSessionRepository) Remove(remoteID string) (*domain.PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[remoteID]
	if ok {
		delete(r.sessions, remoteID)
	}

	return session, ok
}

func (r *peerSessionRepository) RemoveIf(
	remoteID string,
	match func(*domain.PeerSession) bool,
) (*domain.PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[remoteID]
	if !ok || !match(session) {
		return nil, false
	}

	delete(r.sessions, remoteID)

	return session, true
}

func (r *peerSessionRepository) Close() []*domain.PeerSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	sessions := make([]*domain.PeerSession, 0, len(r.sessions))
	for id, session := range r.sessions {
		sessions = append(sessions, session)
		delete(r.sessions, id)
	}

	return sessions
}

func (r *peerSessionRepository) List() []*domain.PeerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*domain.PeerSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].RemoteID < sessions[j].RemoteID })

	return sessions
}

func (r *peerSessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
