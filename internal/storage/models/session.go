// Package models contains the domain models for the application.
package models

// Session is a conference session as mirrored from the sessions feed, plus
// the locally owned star state.
type Session struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Abstract         string   `json:"abstract"`
	TrackID          string   `json:"track_id"`
	RoomID           string   `json:"room_id"`
	SpeakerIDs       []string `json:"speaker_ids"`
	Experience       string   `json:"experience"`
	Kind             string   `json:"kind"`
	PresentationURL  string   `json:"presentation_url,omitempty"`
	Starred          bool     `json:"starred"`
	OperationPending bool     `json:"operation_pending"`
	Updated          int64    `json:"updated"`
}

// StarState is the star flag pair of a session.
type StarState struct {
	SessionID string `json:"session_id"`
	Starred   bool   `json:"starred"`
	Pending   bool   `json:"pending"`
}
