package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

type RoomUserRepository interface {
	// Upsert сохраняет участника, joined_at при повторной записи не меняется
	Upsert(ctx context.Context, roomID string, p models.Participant) (models.Participant, error)
	Delete(ctx context.Context, roomID, participantID string) error
	ListByRoom(ctx context.Context, roomID string) ([]models.Participant, error)
}

type roomUserRepo struct {
	db *sqlx.DB
}

func NewRoomUserRepo(db *sqlx.DB) RoomUserRepository {
	return &roomUserRepo{db: db}
}

func (r *roomUserRepo) Upsert(ctx context.Context, roomID string, p models.Participant) (models.Participant, error) {
	var stored models.Participant

	query := `
		INSERT INTO room_users (room_id, participant_id, screen_name, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id, participant_id)
		DO UPDATE SET screen_name = EXCLUDED.screen_name, active = EXCLUDED.active
		RETURNING participant_id, screen_name, joined_at, active
	`

	err := r.db.GetContext(ctx, &stored, query, roomID, p.ID, p.ScreenName, p.Active)
	if err != nil {
		return models.Participant{}, err
	}

	return stored, nil
}

func (r *roomUserRepo) Delete(ctx context.Context, roomID, participantID string) error {
	_, err := r.db.ExecContext(
		ctx,
		"DELETE FROM room_users WHERE room_id = $1 AND participant_id = $2",
		roomID,
		participantID,
	)

	return err
}

func (r *roomUserRepo) ListByRoom(ctx context.Context, roomID string) ([]models.Participant, error) {
	var participants []models.Participant

	query := `
		SELECT participant_id, screen_name, joined_at, active
		FROM room_users
		WHERE room_id = $1
		ORDER BY joined_at, participant_id
	`

	if err := r.db.SelectContext(ctx, &participants, query, roomID); err != nil {
		return nil, err
	}

	return participants, nil
}
