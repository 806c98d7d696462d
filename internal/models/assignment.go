package models

const (
	AssignmentsCollection = "assignments"
	CompletionsCollection = "assignmentCompletions"
	ScoresCollection      = "assignmentScores"

	StatusAchieved = "achieved"
)

type AssignmentState string

const (
	StatePending   AssignmentState = "pending"
	StateCompleted AssignmentState = "completed"
	StateReviewed  AssignmentState = "reviewed"
)

type Assignment struct {
	ID            string `json:"id"`
	Title         string `json:"title" validate:"required,max=255"`
	Instructions  string `json:"instructions" validate:"max=10000"`
	Module        string `json:"module" validate:"required,max=255"`
	DueDate       string `json:"dueDate,omitempty"`
	GoogleFormURL string `json:"googleFormUrl,omitempty" validate:"omitempty,url"`
	Status        string `json:"status,omitempty" validate:"omitempty,oneof=achieved"`
	AchievedAt    string `json:"achievedAt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

func (a Assignment) Archived() bool {
	return a.Status == StatusAchieved
}

type Completion struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignmentId" validate:"required"`
	UserID       string `json:"userId" validate:"required"`
	CompletedAt  string `json:"completedAt" validate:"required"`
}

type Score struct {
	ID           string   `json:"id"`
	AssignmentID string   `json:"assignmentId" validate:"required"`
	UserID       string   `json:"userId" validate:"required"`
	GeneralScore string   `json:"generalScore" validate:"required,max=255"`
	ScoreValue   *float64 `json:"scoreValue,omitempty" validate:"omitempty,gte=0"`
	ScoreOutOf   *float64 `json:"scoreOutOf,omitempty" validate:"omitempty,gt=0"`
	Comments     string   `json:"comments,omitempty" validate:"max=10000"`
	CreatedAt    string   `json:"createdAt" validate:"required"`
}

// AssignmentView is one assignment with its state derived for a single user.
type AssignmentView struct {
	Assignment Assignment      `json:"assignment"`
	State      AssignmentState `json:"state"`
	Completion *Completion     `json:"completion,omitempty"`
	Score      *Score          `json:"score,omitempty"`
}

type StudentAssignments struct {
	Pending   []AssignmentView `json:"pending"`
	Completed []AssignmentView `json:"completed"`
	Reviewed  []AssignmentView `json:"reviewed"`
}

type Review struct {
	AssignmentID string `json:"assignmentId"`
	Title        string `json:"title"`
	GeneralScore string `json:"generalScore"`
	Score        string `json:"score"`
	Comments     string `json:"comments,omitempty"`
	ReviewedAt   string `json:"reviewedAt,omitempty"`
}

type DashboardStats struct {
	ActiveAssignments   int `json:"activeAssignments"`
	AchievedAssignments int `json:"achievedAssignments"`
	Students            int `json:"students"`
	PendingReviews      int `json:"pendingReviews"`
	UnreadConversations int `json:"unreadConversations"`
	Certificates        int `json:"certificates"`
}
