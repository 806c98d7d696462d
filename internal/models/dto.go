package models

// Data Transfer Objects

type SendMessageRequest struct {
	Text     string `json:"text" validate:"required,max=4000"`
	ClientID string `json:"client_id" validate:"omitempty,max=128"`
}

type AssignmentRequest struct {
	Title         string `json:"title" validate:"required,max=255"`
	Instructions  string `json:"instructions" validate:"max=10000"`
	Module        string `json:"module" validate:"required,max=255"`
	DueDate       string `json:"due_date"`
	GoogleFormURL string `json:"google_form_url" validate:"omitempty,url"`
}

type ScoreRequest struct {
	AssignmentID string   `json:"assignment_id" validate:"required"`
	UserID       string   `json:"user_id" validate:"required"`
	GeneralScore string   `json:"general_score" validate:"required,max=255"`
	ScoreValue   *float64 `json:"score_value" validate:"omitempty,gte=0"`
	ScoreOutOf   *float64 `json:"score_out_of" validate:"omitempty,gt=0"`
	Comments     string   `json:"comments" validate:"max=10000"`
}

type SessionRequest struct {
	Title      string `json:"title" validate:"max=255"`
	Topic      string `json:"topic" validate:"max=255"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Instructor string `json:"instructor" validate:"max=255"`
	Room       string `json:"room" validate:"max=2048"`
}

type StartSessionResponse struct {
	Session *Session `json:"session"`
	JoinURL string   `json:"join_url,omitempty"`
}

type NoteRequest struct {
	Title  string `json:"title" validate:"required,max=255"`
	Module string `json:"module" validate:"max=255"`
	URL    string `json:"url" validate:"required"`
}

type VideoRequest struct {
	URL         string `json:"url" validate:"required,url"`
	Title       string `json:"title" validate:"max=255"`
	Description string `json:"description" validate:"max=2000"`
}

type CertificateRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	UserName  string `json:"user_name" validate:"max=255"`
	UserEmail string `json:"user_email" validate:"omitempty,email"`
	AccessURL string `json:"access_url" validate:"required"`
}

type UnreadResponse struct {
	Count int   `json:"count"`
	Badge Badge `json:"badge"`
}
