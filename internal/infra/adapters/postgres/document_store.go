package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/postgres/repository"
)

// userNotification - полезная нагрузка триггера notify_room_users
type userNotification struct {
	Op            string    `json:"op"`
	RoomID        string    `json:"room_id"`
	ParticipantID string    `json:"participant_id"`
	ScreenName    string    `json:"screen_name"`
	JoinedAt      time.Time `json:"joined_at"`
	Active        bool      `json:"active"`
}

func (n userNotification) change() (models.UserChange, bool) {
	p := models.Participant{
		ID:         n.ParticipantID,
		ScreenName: n.ScreenName,
		JoinedAt:   n.JoinedAt,
		Active:     n.Active,
	}

	switch n.Op {
	case "INSERT":
		return models.UserChange{Type: models.ChangeAdded, Participant: p}, true
	case "UPDATE":
		return models.UserChange{Type: models.ChangeModified, Participant: p}, true
	case "DELETE":
		return models.UserChange{Type: models.ChangeRemoved, Participant: p}, true
	default:
		return models.UserChange{}, false
	}
}

// signalNotification - триггер отдает только ключи, сам сигнал читается по id
type signalNotification struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	RecipientID string `json:"recipient_id"`
}

// DocumentStore хранит документы комнаты в таблицах Postgres,
// изменения приходят через LISTEN/NOTIFY
type DocumentStore struct {
	db      *sqlx.DB
	dsn     string
	users   repository.RoomUserRepository
	signals repository.RoomSignalRepository
}

func NewDocumentStore(db *sqlx.DB, dsn string) *DocumentStore {
	return &DocumentStore{
		db:      db,
		dsn:     dsn,
		users:   repository.NewRoomUserRepo(db),
		signals: repository.NewRoomSignalRepo(db),
	}
}

func (s *DocumentStore) UpsertUser(ctx context.Context, roomID string, p models.Participant) (models.Participant, error) {
	stored, err := s.users.Upsert(ctx, roomID, p)
	if err != nil {
		return models.Participant{}, classify("upsert participant", err)
	}

	return stored, nil
}

func (s *DocumentStore) DeleteUser(ctx context.Context, roomID, participantID string) error {
	if err := s.users.Delete(ctx, roomID, participantID); err != nil {
		return classify("delete participant", err)
	}

	return nil
}

func (s *DocumentStore) WatchUsers(ctx context.Context, roomID string, fn func(models.UserChange)) (domain.Unsubscribe, error) {
	conn, err := listen(ctx, s.dsn, usersChannel)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.users.ListByRoom(ctx, roomID)
	if err != nil {
		_ = conn.Close(context.Background())

		return nil, classify("list participants", err)
	}

	return consume(ctx, conn, func() {
		for _, p := range snapshot {
			fn(models.UserChange{Type: models.ChangeAdded, Participant: p})
		}
	}, func(payload string) {
		var n userNotification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			slog.Error("decode user notification", slog.Any(constant.Error, err))
			return
		}

		if n.RoomID != roomID {
			return
		}

		if change, ok := n.change(); ok {
			fn(change)
		}
	}), nil
}

func (s *DocumentStore) AddSignal(ctx context.Context, roomID string, msg models.SignalMessage) (string, error) {
	msg.ID = uuid.NewString()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if err := s.signals.Create(ctx, roomID, msg); err != nil {
		return "", classify("add signal", err)
	}

	return msg.ID, nil
}

func (s *DocumentStore) DeleteSignal(ctx context.Context, roomID, signalID string) error {
	if err := s.signals.Delete(ctx, roomID, signalID); err != nil {
		return classify("delete signal", err)
	}

	return nil
}

func (s *DocumentStore) WatchSignals(
	ctx context.Context,
	roomID, recipientID string,
	fn func(models.SignalMessage),
) (domain.Unsubscribe, error) {
	conn, err := listen(ctx, s.dsn, signalsChannel)
	if err != nil {
		return nil, err
	}

	backlog, err := s.signals.ListByRecipient(ctx, roomID, recipientID)
	if err != nil {
		_ = conn.Close(context.Background())

		return nil, classify("list signals", err)
	}

	return consume(ctx, conn, func() {
		for _, msg := range backlog {
			fn(msg)
		}
	}, func(payload string) {
		var n signalNotification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			slog.Error("decode signal notification", slog.Any(constant.Error, err))
			return
		}

		if n.RoomID != roomID || n.RecipientID != recipientID {
			return
		}

		msg, err := s.signals.GetByID(ctx, n.ID)
		if err != nil {
			// сигнал мог быть уже удален получателем
			slog.Debug("fetch signal", slog.Any(constant.Error, err), slog.String(constant.SignalID, n.ID))
			return
		}

		fn(msg)
	}), nil
}

func (s *DocumentStore) Close() error {
	return s.db.Close()
}
