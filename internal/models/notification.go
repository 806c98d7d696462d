package models

const NotificationsCollection = "notifications"

const (
	KindReview      = "review"
	KindMessage     = "message"
	KindCertificate = "certificate"
	KindSession     = "session"
)

type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"userId" validate:"required"`
	Title     string `json:"title" validate:"required,max=255"`
	Body      string `json:"body" validate:"max=2000"`
	Kind      string `json:"kind" validate:"required,oneof=review message certificate session"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt" validate:"required"`
}
