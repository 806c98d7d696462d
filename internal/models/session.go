package models

const (
	SessionsCollection = "sessions"

	SlotCurrent = "current"
	SlotNext    = "next"
)

type Session struct {
	Title      string `json:"title" validate:"max=255"`
	Topic      string `json:"topic" validate:"max=255"`
	Date       string `json:"date"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Instructor string `json:"instructor" validate:"max=255"`
	Room       string `json:"room"`
	Active     bool   `json:"active"`
}

type Sessions struct {
	Current *Session `json:"current"`
	Next    *Session `json:"next"`
}
