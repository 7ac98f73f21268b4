package usecase

import (
	"log/slog"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/memory"
)

// MembershipHandler получает события входа и выхода удаленных участников
type MembershipHandler interface {
	OnPeerJoined(p models.Participant)
	OnPeerLeft(participantID string)
	// OnPeerUpdated - изменилась запись уже присутствующего участника
	OnPeerUpdated(p models.Participant)
}

// MembershipTracker превращает поток изменений коллекции users в события входа и выхода.
// Собственная запись участника игнорируется, повторные added для присутствующего id тоже.
type MembershipTracker struct {
	selfID       string
	participants memory.ParticipantRepository
	handler      MembershipHandler
}

func NewMembershipTracker(
	selfID string,
	participants memory.ParticipantRepository,
	handler MembershipHandler,
) *MembershipTracker {
	return &MembershipTracker{
		selfID:       selfID,
		participants: participants,
		handler:      handler,
	}
}

func (t *MembershipTracker) HandleChange(change models.UserChange) {
	p := change.Participant

	if p.ID == "" || p.ID == t.selfID {
		return
	}

	switch change.Type {
	case models.ChangeAdded, models.ChangeModified:
		if !p.Active {
			t.leave(p.ID)
			return
		}

		if t.participants.Add(p) {
			slog.Info(
				"peer joined",
				slog.String(constant.RemoteID, p.ID),
				slog.String(constant.ScreenName, p.ScreenName),
			)
			t.handler.OnPeerJoined(p)

			return
		}

		if t.participants.Update(p) {
			t.handler.OnPeerUpdated(p)
		}
	case models.ChangeRemoved:
		t.leave(p.ID)
	default:
		slog.Warn("unknown membership change", slog.String("type", string(change.Type)))
	}
}

func (t *MembershipTracker) leave(participantID string) {
	if !t.participants.Remove(participantID) {
		return
	}

	slog.Info("peer left", slog.String(constant.RemoteID, participantID))

	t.handler.OnPeerLeft(participantID)
}

func (t *MembershipTracker) IsPresent(participantID string) bool {
	_, ok := t.participants.Get(participantID)
	return ok
}

// Present - участники, которые сейчас считаются присутствующими
func (t *MembershipTracker) Present() []models.Participant {
	return t.participants.List()
}

// Reset забывает всех участников без событий выхода
func (t *MembershipTracker) Reset() {
	t.participants.Clear()
}
