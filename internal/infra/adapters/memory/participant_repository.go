package memory

import (
	"sync"

	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

// ParticipantRepository - зеркало участников комнаты, которые сейчас считаются присутствующими
type ParticipantRepository interface {
	// Add возвращает true только при первом переходе участника в "присутствует"
	Add(p models.Participant) bool

	// Update обновляет запись уже присутствующего участника
	Update(p models.Participant) bool

	// Remove возвращает true, если участник присутствовал
	Remove(participantID string) bool

	Get(participantID string) (models.Participant, bool)
	List() []models.Participant
	Clear()
}

type participantRepository struct {
	participants map[string]models.Participant
	mu           sync.RWMutex
}

func NewParticipantRepository() ParticipantRepository {
	return &participantRepository{
		participants: make(map[string]models.Participant),
	}
}

func (r *participantRepository) Add(p models.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[p.ID]; exists {
		return false
	}

	r.participants[p.ID] = p

	return true
}

func (r *participantRepository) Update(p models.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[p.ID]; !exists {
		return false
	}

	r.participants[p.ID] = p

	return true
}

func (r *participantRepository) Remove(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[participantID]; !exists {
		return false
	}

	delete(r.participants, participantID)

	return true
}

func (r *participantRepository) Get(participantID string) (models.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[participantID]
	return p, ok
}

func (r *participantRepository) List() []models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := make([]models.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, p)
	}

	return participants
}

func (r *participantRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants = make(map[string]models.Participant)
}
