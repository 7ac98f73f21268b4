package constant

// Ключи атрибутов для slog
const (
	Error         = "error"
	RoomID        = "room_id"
	ParticipantID = "participant_id"
	RemoteID      = "remote_id"
	ScreenName    = "screen_name"
	State         = "state"
	Role          = "role"
	SignalID      = "signal_id"
	SignalType    = "signal_type"
	Muted         = "muted"
	Driver        = "driver"
	Device        = "device"
)
