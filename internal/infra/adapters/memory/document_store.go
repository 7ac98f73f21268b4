package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

type storedSignal struct {
	seq uint64
	msg models.SignalMessage
}

type userSubscriber struct {
	*subscriber
	fn func(models.UserChange)
}

func (s *userSubscriber) notify(ev models.UserChange) {
	s.push(func() { s.fn(ev) })
}

type signalSubscriber struct {
	*subscriber
	recipientID string
	fn          func(models.SignalMessage)
}

func (s *signalSubscriber) notify(msg models.SignalMessage) {
	s.push(func() { s.fn(msg) })
}

type room struct {
	users   map[string]models.Participant
	signals map[string]storedSignal

	userSubs   map[uint64]*userSubscriber
	signalSubs map[uint64]*signalSubscriber
}

// DocumentStore - хранилище документов в памяти процесса.
// Используется драйвером memory и в тестах.
type DocumentStore struct {
	rooms map[string]*room
	seq   uint64
	now   func() time.Time

	mu sync.Mutex
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		rooms: make(map[string]*room),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// комната создается лениво, как и во внешнем хранилище
func (s *DocumentStore) room(roomID string) *room {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{
			users:      make(map[string]models.Participant),
			signals:    make(map[string]storedSignal),
			userSubs:   make(map[uint64]*userSubscriber),
			signalSubs: make(map[uint64]*signalSubscriber),
		}
		s.rooms[roomID] = r
	}

	return r
}

func (s *DocumentStore) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *DocumentStore) UpsertUser(ctx context.Context, roomID string, p models.Participant) (models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return models.Participant{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(roomID)

	change := models.ChangeAdded
	if existing, ok := r.users[p.ID]; ok {
		change = models.ChangeModified
		p.JoinedAt = existing.JoinedAt
	} else if p.JoinedAt.IsZero() {
		p.JoinedAt = s.now()
	}

	r.users[p.ID] = p

	for _, sub := range r.userSubs {
		sub.notify(models.UserChange{Type: change, Participant: p})
	}

	return p, nil
}

func (s *DocumentStore) DeleteUser(ctx context.Context, roomID, participantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(roomID)

	p, ok := r.users[participantID]
	if !ok {
		return nil
	}

	delete(r.users, participantID)

	for _, sub := range r.userSubs {
		sub.notify(models.UserChange{Type: models.ChangeRemoved, Participant: p})
	}

	return nil
}

func (s *DocumentStore) WatchUsers(ctx context.Context, roomID string, fn func(models.UserChange)) (domain.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &userSubscriber{subscriber: newSubscriber(), fn: fn}

	s.mu.Lock()
	r := s.room(roomID)
	id := s.nextSeq()
	r.userSubs[id] = sub

	snapshot := make([]models.Participant, 0, len(r.users))
	for _, p := range r.users {
		snapshot = append(snapshot, p)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].JoinedBefore(snapshot[j]) })

	for _, p := range snapshot {
		sub.notify(models.UserChange{Type: models.ChangeAdded, Participant: p})
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(r.userSubs, id)
		s.mu.Unlock()

		sub.close()
	}, nil
}

func (s *DocumentStore) AddSignal(ctx context.Context, roomID string, msg models.SignalMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(roomID)

	msg.ID = uuid.NewString()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	r.signals[msg.ID] = storedSignal{seq: s.nextSeq(), msg: msg}

	for _, sub := range r.signalSubs {
		if sub.recipientID != msg.To {
			continue
		}

		sub.notify(msg)
	}

	return msg.ID, nil
}

func (s *DocumentStore) DeleteSignal(ctx context.Context, roomID, signalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.room(roomID).signals, signalID)

	return nil
}

func (s *DocumentStore) WatchSignals(
	ctx context.Context,
	roomID, recipientID string,
	fn func(models.SignalMessage),
) (domain.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &signalSubscriber{subscriber: newSubscriber(), recipientID: recipientID, fn: fn}

	s.mu.Lock()
	r := s.room(roomID)
	id := s.nextSeq()
	r.signalSubs[id] = sub

	backlog := make([]storedSignal, 0)
	for _, stored := range r.signals {
		if stored.msg.To == recipientID {
			backlog = append(backlog, stored)
		}
	}
	sort.Slice(backlog, func(i, j int) bool { return backlog[i].seq < backlog[j].seq })

	for _, stored := range backlog {
		sub.notify(stored.msg)
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(r.signalSubs, id)
		s.mu.Unlock()

		sub.close()
	}, nil
}

// Users возвращает записи участников комнаты
func (s *DocumentStore) Users(roomID string) []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}

	users := make([]models.Participant, 0, len(r.users))
	for _, p := range r.users {
		users = append(users, p)
	}

	return users
}

// PendingSignals - количество неудаленных сигналов в комнате
func (s *DocumentStore) PendingSignals(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return 0
	}

	return len(r.signals)
}

// Subscriptions - количество живых подписок на комнату
func (s *DocumentStore) Subscriptions(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return 0
	}

	return len(r.userSubs) + len(r.signalSubs)
}

func (s *DocumentStore) Close() error {
	s.mu.Lock()

	subs := make([]*subscriber, 0)
	for _, r := range s.rooms {
		for id, sub := range r.userSubs {
			subs = append(subs, sub.subscriber)
			delete(r.userSubs, id)
		}

		for id, sub := range r.signalSubs {
			subs = append(subs, sub.subscriber)
			delete(r.signalSubs, id)
		}
	}
	s.mu.Unlock()

	// обработчик может писать в хранилище, поэтому ждем вне блокировки
	for _, sub := range subs {
		sub.close()
	}

	return nil
}
