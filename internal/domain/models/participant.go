package models

import "time"

// Participant - запись участника в коллекции users комнаты
type Participant struct {
	ID         string    `json:"uid" db:"participant_id" msgpack:"uid"`
	ScreenName string    `json:"screenName" db:"screen_name" msgpack:"screenName"`
	JoinedAt   time.Time `json:"joinedAt" db:"joined_at" msgpack:"joinedAt"`
	Active     bool      `json:"active" db:"active" msgpack:"active"`
}

// JoinedBefore - порядок входа в комнату, при равенстве времени решает id
func (p Participant) JoinedBefore(other Participant) bool {
	if !p.JoinedAt.IsZero() && !other.JoinedAt.IsZero() && !p.JoinedAt.Equal(other.JoinedAt) {
		return p.JoinedAt.Before(other.JoinedAt)
	}

	return p.ID < other.ID
}

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// UserChange - изменение в коллекции users
type UserChange struct {
	Type        ChangeType  `msgpack:"type"`
	Participant Participant `msgpack:"participant"`
}
