package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

type RoomSignalRepository interface {
	Create(ctx context.Context, roomID string, msg models.SignalMessage) error
	GetByID(ctx context.Context, signalID string) (models.SignalMessage, error)
	ListByRecipient(ctx context.Context, roomID, recipientID string) ([]models.SignalMessage, error)
	Delete(ctx context.Context, roomID, signalID string) error
}

type signalRow struct {
	ID      string `db:"id"`
	Payload []byte `db:"payload"`
}

func (r signalRow) decode() (models.SignalMessage, error) {
	var msg models.SignalMessage
	if err := json.Unmarshal(r.Payload, &msg); err != nil {
		return models.SignalMessage{}, fmt.Errorf("decode signal %s: %w", r.ID, err)
	}

	msg.ID = r.ID

	return msg, nil
}

type roomSignalRepo struct {
	db *sqlx.DB
}

func NewRoomSignalRepo(db *sqlx.DB) RoomSignalRepository {
	return &roomSignalRepo{db: db}
}

func (r *roomSignalRepo) Create(ctx context.Context, roomID string, msg models.SignalMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}

	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO room_signals (id, room_id, recipient_id, sender_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID,
		roomID,
		msg.To,
		msg.From,
		string(msg.Type),
		payload,
		msg.Timestamp,
	)

	return err
}

func (r *roomSignalRepo) GetByID(ctx context.Context, signalID string) (models.SignalMessage, error) {
	var row signalRow

	err := r.db.GetContext(ctx, &row, "SELECT id, payload FROM room_signals WHERE id = $1", signalID)
	if err != nil {
		return models.SignalMessage{}, err
	}

	return row.decode()
}

func (r *roomSignalRepo) ListByRecipient(ctx context.Context, roomID, recipientID string) ([]models.SignalMessage, error) {
	var rows []signalRow

	query := `
		SELECT id, payload
		FROM room_signals
		WHERE room_id = $1 AND recipient_id = $2
		ORDER BY created_at
	`

	if err := r.db.SelectContext(ctx, &rows, query, roomID, recipientID); err != nil {
		return nil, err
	}

	signals := make([]models.SignalMessage, 0, len(rows))
	for _, row := range rows {
		msg, err := row.decode()
		if err != nil {
			return nil, err
		}

		signals = append(signals, msg)
	}

	return signals, nil
}

func (r *roomSignalRepo) Delete(ctx context.Context, roomID, signalID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM room_signals WHERE room_id = $1 AND id = $2", roomID, signalID)

	return err
}
