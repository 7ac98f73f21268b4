package usecase

import (
	"sort"
	"sync"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/output"
)

// SessionStatus - состояние локального участника для проекции присутствия
type SessionStatus struct {
	Joined        bool
	RoomID        string
	ParticipantID string
	ScreenName    string
	Muted         bool
	Message       string
}

// RosterSource отдает данные, из которых строится список участников
type RosterSource interface {
	Status() SessionStatus
	Sessions() []*domain.PeerSession
}

// PresenceUsecase - проекция присутствия, собственного состояния не имеет
type PresenceUsecase interface {
	Roster() output.Roster
	// Subscribe возвращает канал свежих снимков. Медленный читатель получает только последний.
	Subscribe() (<-chan output.Roster, func())
	Notify()
}

type presenceUsecase struct {
	source RosterSource

	mu   sync.Mutex
	subs map[uint64]chan output.Roster
	seq  uint64
}

func NewPresenceUsecase(source RosterSource) PresenceUsecase {
	return &presenceUsecase{
		source: source,
		subs:   make(map[uint64]chan output.Roster),
	}
}

func (p *presenceUsecase) Roster() output.Roster {
	return ProjectRoster(p.source.Status(), p.source.Sessions())
}

// ProjectRoster: локальный участник первым, затем удаленные по имени
func ProjectRoster(status SessionStatus, sessions []*domain.PeerSession) output.Roster {
	roster := output.Roster{
		Room:    status.RoomID,
		Joined:  status.Joined,
		Status:  status.Message,
		Entries: make([]output.RosterEntry, 0, len(sessions)+1),
	}

	if !status.Joined {
		return roster
	}

	roster.Entries = append(roster.Entries, output.RosterEntry{
		ID:      status.ParticipantID,
		Name:    status.ScreenName + " (You)",
		IsLocal: true,
		IsMuted: status.Muted,
	})

	remotes := make([]output.RosterEntry, 0, len(sessions))
	for _, session := range sessions {
		remotes = append(remotes, output.RosterEntry{
			ID:    session.RemoteID,
			Name:  session.RemoteName(),
			State: string(session.State()),
		})
	}

	sort.Slice(remotes, func(i, j int) bool {
		if remotes[i].Name != remotes[j].Name {
			return remotes[i].Name < remotes[j].Name
		}

		return remotes[i].ID < remotes[j].ID
	})

	roster.Entries = append(roster.Entries, remotes...)

	return roster
}

func (p *presenceUsecase) Subscribe() (<-chan output.Roster, func()) {
	ch := make(chan output.Roster, 1)

	p.mu.Lock()
	ch <- p.Roster()
	p.seq++
	id := p.seq
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Notify строит снимок под блокировкой, поэтому последним подписчик получает самый свежий
func (p *presenceUsecase) Notify() {
	p.mu.Lock()
	defer p.mu.Unlock()

	roster := p.Roster()

	for _, ch := range p.subs {
		// вытесняем непрочитанный снимок
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- roster:
		default:
		}
	}
}
