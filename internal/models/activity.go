package models

const (
	ActivityCollection = "activity"

	ActivityAssignmentSubmitted = "assignment_submitted"
	ActivitySupportMessageSent  = "support_message_sent"
	ActivityVideoWatched        = "video_watched"
	ActivityPDFView             = "pdf_view"
	ActivityPDFDownload         = "pdf_download"
	ActivityCertificateView     = "certificate_view"
	ActivityCertificateDownload = "certificate_download"
	ActivityLogin               = "login"

	// ActivityFeedLimit is how many entries the student dashboard shows.
	ActivityFeedLimit = 6
)

// Activity is one entry of a student's recent-activity feed.
type Activity struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId" validate:"required"`
	Type      string                 `json:"type" validate:"required,max=64"`
	Title     string                 `json:"title,omitempty" validate:"max=255"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	Timestamp string                 `json:"timestamp" validate:"required"`
}

type ActivityRequest struct {
	Type  string                 `json:"type" validate:"required,oneof=video_watched pdf_view pdf_download certificate_view certificate_download login"`
	Title string                 `json:"title" validate:"max=255"`
	Meta  map[string]interface{} `json:"meta"`
}

// StudentDashboard is the summary a student sees on landing.
type StudentDashboard struct {
	PendingAssignments int        `json:"pendingAssignments"`
	NewVideos          int        `json:"newVideos"`
	NewNotes           int        `json:"newNotes"`
	UnreadSupport      int        `json:"unreadSupport"`
	Certified          bool       `json:"certified"`
	Progress           int        `json:"progress"`
	Activity           []Activity `json:"activity"`
}
