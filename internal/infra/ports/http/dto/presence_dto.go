package dto

type MuteRequest struct {
	Muted bool `json:"muted"`
}

type MuteResponse struct {
	Muted bool `json:"muted"`
}

type JoinRequest struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}
