package output

// RosterEntry - строка списка участников для отображения
type RosterEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsLocal bool   `json:"is_local"`
	IsMuted bool   `json:"is_muted"`
	State   string `json:"state,omitempty"`
}

// Roster - снимок присутствия в комнате
type Roster struct {
	Room    string        `json:"room"`
	Joined  bool          `json:"joined"`
	Status  string        `json:"status"`
	Entries []RosterEntry `json:"entries"`
}
