package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

const keyPrefix = "voiceRooms"

func usersKey(roomID string) string {
	return fmt.Sprintf("%s:%s:users", keyPrefix, roomID)
}

func usersChannel(roomID string) string {
	return fmt.Sprintf("%s:%s:users:changes", keyPrefix, roomID)
}

func signalsKey(roomID string) string {
	return fmt.Sprintf("%s:%s:signals", keyPrefix, roomID)
}

func signalsChannel(roomID, recipientID string) string {
	return fmt.Sprintf("%s:%s:signals:%s", keyPrefix, roomID, recipientID)
}

// DocumentStore хранит документы комнаты в хешах Redis,
// изменения рассылаются через PUBLISH в msgpack
type DocumentStore struct {
	client *redis.Client
}

func NewDocumentStore(client *redis.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) UpsertUser(ctx context.Context, roomID string, p models.Participant) (models.Participant, error) {
	change := models.ChangeAdded

	raw, err := s.client.HGet(ctx, usersKey(roomID), p.ID).Bytes()
	switch {
	case err == nil:
		var existing models.Participant
		if err = msgpack.Unmarshal(raw, &existing); err != nil {
			return models.Participant{}, fmt.Errorf("decode participant: %w", err)
		}

		change = models.ChangeModified
		p.JoinedAt = existing.JoinedAt
	case errors.Is(err, redis.Nil):
		// joinedAt назначает сервер, чтобы порядок входа был общим для всех клиентов
		now, err := s.client.Time(ctx).Result()
		if err != nil {
			return models.Participant{}, classify("server time", err)
		}

		p.JoinedAt = now.UTC()
	default:
		return models.Participant{}, classify("get participant", err)
	}

	payload, err := msgpack.Marshal(p)
	if err != nil {
		return models.Participant{}, fmt.Errorf("encode participant: %w", err)
	}

	if err = s.client.HSet(ctx, usersKey(roomID), p.ID, payload).Err(); err != nil {
		return models.Participant{}, classify("set participant", err)
	}

	if err = s.publishUserChange(ctx, roomID, models.UserChange{Type: change, Participant: p}); err != nil {
		return models.Participant{}, err
	}

	return p, nil
}

func (s *DocumentStore) DeleteUser(ctx context.Context, roomID, participantID string) error {
	raw, err := s.client.HGet(ctx, usersKey(roomID), participantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}

	if err != nil {
		return classify("get participant", err)
	}

	var p models.Participant
	if err = msgpack.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode participant: %w", err)
	}

	removed, err := s.client.HDel(ctx, usersKey(roomID), participantID).Result()
	if err != nil {
		return classify("delete participant", err)
	}

	// запись уже удалил параллельный вызов
	if removed == 0 {
		return nil
	}

	return s.publishUserChange(ctx, roomID, models.UserChange{Type: models.ChangeRemoved, Participant: p})
}

func (s *DocumentStore) publishUserChange(ctx context.Context, roomID string, change models.UserChange) error {
	payload, err := msgpack.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode user change: %w", err)
	}

	if err = s.client.Publish(ctx, usersChannel(roomID), payload).Err(); err != nil {
		return classify("publish user change", err)
	}

	return nil
}

func (s *DocumentStore) WatchUsers(ctx context.Context, roomID string, fn func(models.UserChange)) (domain.Unsubscribe, error) {
	// подписка оформляется до чтения снимка, иначе изменения между ними теряются
	pubsub, err := s.subscribe(ctx, usersChannel(roomID))
	if err != nil {
		return nil, err
	}

	values, err := s.client.HGetAll(ctx, usersKey(roomID)).Result()
	if err != nil {
		_ = pubsub.Close()

		return nil, classify("read participants", err)
	}

	snapshot := make([]models.Participant, 0, len(values))
	for id, raw := range values {
		var p models.Participant
		if err = msgpack.Unmarshal([]byte(raw), &p); err != nil {
			slog.Error("decode participant", slog.Any(constant.Error, err), slog.String(constant.ParticipantID, id))
			continue
		}

		snapshot = append(snapshot, p)
	}

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].JoinedBefore(snapshot[j]) })

	return s.stream(ctx, pubsub, func() {
		for _, p := range snapshot {
			fn(models.UserChange{Type: models.ChangeAdded, Participant: p})
		}
	}, func(payload string) {
		var change models.UserChange
		if err := msgpack.Unmarshal([]byte(payload), &change); err != nil {
			slog.Error("decode user change", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
			return
		}

		fn(change)
	}), nil
}

func (s *DocumentStore) AddSignal(ctx context.Context, roomID string, msg models.SignalMessage) (string, error) {
	msg.ID = uuid.NewString()

	if msg.Timestamp.IsZero() {
		now, err := s.client.Time(ctx).Result()
		if err != nil {
			return "", classify("server time", err)
		}

		msg.Timestamp = now.UTC()
	}

	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode signal: %w", err)
	}

	if err = s.client.HSet(ctx, signalsKey(roomID), msg.ID, payload).Err(); err != nil {
		return "", classify("add signal", err)
	}

	if err = s.client.Publish(ctx, signalsChannel(roomID, msg.To), payload).Err(); err != nil {
		return "", classify("publish signal", err)
	}

	return msg.ID, nil
}

func (s *DocumentStore) DeleteSignal(ctx context.Context, roomID, signalID string) error {
	if err := s.client.HDel(ctx, signalsKey(roomID), signalID).Err(); err != nil {
		return classify("delete signal", err)
	}

	return nil
}

func (s *DocumentStore) WatchSignals(
	ctx context.Context,
	roomID, recipientID string,
	fn func(models.SignalMessage),
) (domain.Unsubscribe, error) {
	pubsub, err := s.subscribe(ctx, signalsChannel(roomID, recipientID))
	if err != nil {
		return nil, err
	}

	values, err := s.client.HGetAll(ctx, signalsKey(roomID)).Result()
	if err != nil {
		_ = pubsub.Close()

		return nil, classify("read signals", err)
	}

	backlog := make([]models.SignalMessage, 0)
	for _, raw := range values {
		var msg models.SignalMessage
		if err = msgpack.Unmarshal([]byte(raw), &msg); err != nil {
			slog.Error("decode signal", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
			continue
		}

		if msg.To == recipientID {
			backlog = append(backlog, msg)
		}
	}

	sort.Slice(backlog, func(i, j int) bool { return backlog[i].Timestamp.Before(backlog[j].Timestamp) })

	return s.stream(ctx, pubsub, func() {
		for _, msg := range backlog {
			fn(msg)
		}
	}, func(payload string) {
		var msg models.SignalMessage
		if err := msgpack.Unmarshal([]byte(payload), &msg); err != nil {
			slog.Error("decode signal", slog.Any(constant.Error, err), slog.String(constant.RoomID, roomID))
			return
		}

		fn(msg)
	}), nil
}

// subscribe дожидается подтверждения подписки от сервера
func (s *DocumentStore) subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	pubsub := s.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()

		return nil, classify("subscribe", err)
	}

	return pubsub, nil
}

// stream доставляет сначала снимок, затем живые сообщения в одной горутине
func (s *DocumentStore) stream(
	ctx context.Context,
	pubsub *redis.PubSub,
	snapshot func(),
	handle func(payload string),
) domain.Unsubscribe {
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		snapshot()

		messages := pubsub.Channel()
		for {
			select {
			case <-streamCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				if streamCtx.Err() != nil {
					return
				}

				handle(msg.Payload)
			}
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			cancel()

			if err := pubsub.Close(); err != nil {
				slog.Warn("close redis subscription", slog.Any(constant.Error, err))
			}

			// обработчик, начатый до отмены, должен завершиться до возврата
			<-done
		})
	}
}

func (s *DocumentStore) Close() error {
	return s.client.Close()
}
