package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
	"github.com/RubachokBoss/learning-platform/internal/store"
)

type AssignmentService interface {
	Create(ctx context.Context, p *auth.Principal, req *models.AssignmentRequest) (*models.Assignment, error)
	Update(ctx context.Context, p *auth.Principal, id string, req *models.AssignmentRequest) (*models.Assignment, error)
	Achieve(ctx context.Context, p *auth.Principal, id string) (*models.Assignment, error)
	Get(ctx context.Context, id string) (*models.Assignment, error)
	ListManaged(ctx context.Context) ([]models.Assignment, error)
	ListAchieved(ctx context.Context) ([]models.Assignment, error)
	Score(ctx context.Context, p *auth.Principal, req *models.ScoreRequest) (*models.Score, error)
	DashboardStats(ctx context.Context, p *auth.Principal) (*models.DashboardStats, error)
	StudentDashboard(ctx context.Context, p *auth.Principal, userID string) (*models.StudentDashboard, error)
	LogActivity(ctx context.Context, p *auth.Principal, req *models.ActivityRequest) error

	StudentAssignments(ctx context.Context, p *auth.Principal, userID string) (*models.StudentAssignments, error)
	MarkCompleted(ctx context.Context, p *auth.Principal, assignmentID string) (*models.AssignmentView, error)
	Review(ctx context.Context, p *auth.Principal, userID, assignmentID string) (*models.Review, error)
}

// recentWindow bounds what the student dashboard counts as new content.
const recentWindow = 3 * 24 * time.Hour

type assignmentService struct {
	store     store.Facade
	publisher integration.EventPublisher
	logger    zerolog.Logger
}

func NewAssignmentService(facade store.Facade, publisher integration.EventPublisher, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		store:     facade,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *assignmentService) Create(ctx context.Context, p *auth.Principal, req *models.AssignmentRequest) (*models.Assignment, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		Title:         req.Title,
		Instructions:  req.Instructions,
		Module:        req.Module,
		DueDate:       req.DueDate,
		GoogleFormURL: req.GoogleFormURL,
		CreatedAt:     now(),
	}
	fields, err := models.EncodeFields(assignment)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Write(ctx, models.AssignmentsCollection, "", fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	assignment.ID = rec.ID

	s.logger.Info().
		Str("assignment_id", assignment.ID).
		Str("title", assignment.Title).
		Msg("Assignment created")

	return assignment, nil
}

// Update rewrites the editable fields and keeps the archive status.
func (s *assignmentService) Update(ctx context.Context, p *auth.Principal, id string, req *models.AssignmentRequest) (*models.Assignment, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rec, err := s.store.Merge(ctx, models.AssignmentsCollection, id, models.Fields{
		"title":         req.Title,
		"instructions":  req.Instructions,
		"module":        req.Module,
		"dueDate":       req.DueDate,
		"googleFormUrl": req.GoogleFormURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update assignment: %w", err)
	}
	return decodeAssignment(rec)
}

// Achieve archives an assignment. It leaves every active listing but stays in ListAchieved.
func (s *assignmentService) Achieve(ctx context.Context, p *auth.Principal, id string) (*models.Assignment, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rec, err := s.store.Merge(ctx, models.AssignmentsCollection, id, models.Fields{
		"status":     models.StatusAchieved,
		"achievedAt": now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive assignment: %w", err)
	}

	s.logger.Info().Str("assignment_id", id).Msg("Assignment archived")
	return decodeAssignment(rec)
}

func (s *assignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	rec, err := s.store.Read(ctx, models.AssignmentsCollection, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("assignment %s: %w", id, models.ErrNotFound)
	}
	return decodeAssignment(rec)
}

func (s *assignmentService) ListManaged(ctx context.Context) ([]models.Assignment, error) {
	all, err := s.assignments(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]models.Assignment, 0, len(all))
	for _, a := range all {
		if !a.Archived() {
			active = append(active, a)
		}
	}
	return active, nil
}

func (s *assignmentService) ListAchieved(ctx context.Context) ([]models.Assignment, error) {
	all, err := s.assignments(ctx)
	if err != nil {
		return nil, err
	}
	achieved := make([]models.Assignment, 0)
	for _, a := range all {
		if a.Archived() {
			achieved = append(achieved, a)
		}
	}
	sort.SliceStable(achieved, func(i, j int) bool {
		return achieved[i].AchievedAt > achieved[j].AchievedAt
	})
	return achieved, nil
}

// Score records an admin review. A completion is not required.
func (s *assignmentService) Score(ctx context.Context, p *auth.Principal, req *models.ScoreRequest) (*models.Score, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	assignment, err := s.Get(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}

	score := &models.Score{
		AssignmentID: req.AssignmentID,
		UserID:       req.UserID,
		GeneralScore: req.GeneralScore,
		ScoreValue:   req.ScoreValue,
		ScoreOutOf:   req.ScoreOutOf,
		Comments:     req.Comments,
		CreatedAt:    now(),
	}
	fields, err := models.EncodeFields(score)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Write(ctx, models.ScoresCollection, uuid.NewString(), fields)
	if err != nil {
		return nil, fmt.Errorf("failed to save score: %w", err)
	}
	score.ID = rec.ID

	publishEvent(ctx, s.publisher, s.logger, p, &models.DomainEvent{
		Type:         models.EventAssignmentScored,
		UserID:       req.UserID,
		AssignmentID: req.AssignmentID,
		Title:        assignment.Title,
		Text:         formatScore(score),
	})

	s.logger.Info().
		Str("assignment_id", req.AssignmentID).
		Str("user_id", req.UserID).
		Str("score_id", score.ID).
		Msg("Assignment scored")

	return score, nil
}

func (s *assignmentService) DashboardStats(ctx context.Context, p *auth.Principal) (*models.DashboardStats, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}

	assignments, err := s.assignments(ctx)
	if err != nil {
		return nil, err
	}
	completions, err := s.completions(ctx, models.Query{})
	if err != nil {
		return nil, err
	}
	scores, err := s.scores(ctx, models.Query{})
	if err != nil {
		return nil, err
	}
	users, err := s.store.Query(ctx, models.UsersCollection, models.Query{})
	if err != nil {
		return nil, err
	}
	metas, err := s.store.Query(ctx, models.ConversationsCollection, models.Query{})
	if err != nil {
		return nil, err
	}
	certificates, err := s.store.Query(ctx, models.CertificatesCollection, models.Query{})
	if err != nil {
		return nil, err
	}

	stats := &models.DashboardStats{Certificates: len(certificates)}
	archived := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		if a.Archived() {
			archived[a.ID] = true
			stats.AchievedAssignments++
		} else {
			stats.ActiveAssignments++
		}
	}
	for _, u := range users {
		if u.Text("role") != auth.RoleAdmin {
			stats.Students++
		}
	}

	scored := latestScores(scores)
	for key, c := range dedupCompletions(completions) {
		if archived[c.AssignmentID] {
			continue
		}
		if _, ok := scored[key]; !ok {
			stats.PendingReviews++
		}
	}

	for _, rec := range metas {
		var meta models.ConversationMeta
		if err := rec.Decode(&meta); err == nil && unreadFromMeta(&meta, true) > 0 {
			stats.UnreadConversations++
		}
	}

	return stats, nil
}

// StudentDashboard summarizes what a student sees on landing. Content counts as new within recentWindow.
func (s *assignmentService) StudentDashboard(ctx context.Context, p *auth.Principal, userID string) (*models.StudentDashboard, error) {
	if err := requireParticipant(p, userID); err != nil {
		return nil, err
	}

	views, err := s.StudentAssignments(ctx, p, userID)
	if err != nil {
		return nil, err
	}
	dashboard := &models.StudentDashboard{
		PendingAssignments: len(views.Pending),
		Activity:           []models.Activity{},
	}

	since := time.Now().Add(-recentWindow)
	if dashboard.NewVideos, err = s.countRecent(ctx, models.VideosCollection, since); err != nil {
		return nil, err
	}
	if dashboard.NewNotes, err = s.countRecent(ctx, models.NotesCollection, since); err != nil {
		return nil, err
	}

	meta, err := s.store.Read(ctx, models.ConversationsCollection, userID)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		var m models.ConversationMeta
		if err := meta.Decode(&m); err == nil {
			dashboard.UnreadSupport = unreadFromMeta(&m, false)
		}
	}

	user, err := s.store.Read(ctx, models.UsersCollection, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		dashboard.Certified = user.Bool("certified")
		dashboard.Progress = user.Int("progress")
	}

	feed := models.Where("userId", userID).Order("timestamp", true)
	feed.Limit = models.ActivityFeedLimit
	activity, err := s.store.Query(ctx, models.ActivityCollection, feed)
	if err != nil {
		return nil, err
	}
	for _, rec := range activity {
		var a models.Activity
		if err := rec.Decode(&a); err == nil {
			dashboard.Activity = append(dashboard.Activity, a)
		}
	}

	return dashboard, nil
}

// LogActivity records a client-side event, such as opening a note, in the caller's feed.
func (s *assignmentService) LogActivity(ctx context.Context, p *auth.Principal, req *models.ActivityRequest) error {
	if p == nil {
		return models.ErrForbidden
	}
	if err := models.ValidateStruct(req); err != nil {
		return err
	}
	recordActivity(ctx, s.store, s.logger, p.ID, req.Type, req.Title, req.Meta)
	return nil
}

// countRecent counts records created at or after since. The createdAt or uploadDate field wins over
// the stored creation time.
func (s *assignmentService) countRecent(ctx context.Context, collection string, since time.Time) (int, error) {
	records, err := s.store.Query(ctx, collection, models.Query{})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range records {
		created := rec.CreatedAt
		for _, field := range []string{"createdAt", "uploadDate"} {
			if t, ok := models.ParseTimestamp(rec.Text(field)); ok {
				created = &t
				break
			}
		}
		if created != nil && !created.Before(since) {
			n++
		}
	}
	return n, nil
}

// StudentAssignments derives the tabs from a fresh read of every source collection.
func (s *assignmentService) StudentAssignments(ctx context.Context, p *auth.Principal, userID string) (*models.StudentAssignments, error) {
	if err := requireParticipant(p, userID); err != nil {
		return nil, err
	}

	assignments, err := s.assignments(ctx)
	if err != nil {
		return nil, err
	}
	completions, err := s.completions(ctx, models.Where("userId", userID))
	if err != nil {
		return nil, err
	}
	scores, err := s.scores(ctx, models.Where("userId", userID))
	if err != nil {
		return nil, err
	}

	completed := dedupCompletions(completions)
	scored := latestScores(scores)

	out := &models.StudentAssignments{
		Pending:   []models.AssignmentView{},
		Completed: []models.AssignmentView{},
		Reviewed:  []models.AssignmentView{},
	}
	for _, a := range assignments {
		if a.Archived() {
			continue
		}
		view := buildView(a, userID, completed, scored)
		switch view.State {
		case models.StateReviewed:
			out.Reviewed = append(out.Reviewed, view)
		case models.StateCompleted:
			out.Completed = append(out.Completed, view)
		default:
			out.Pending = append(out.Pending, view)
		}
	}
	return out, nil
}

// MarkCompleted checks for an existing completion before inserting. Two concurrent calls can both
// insert; the deterministic id makes the second a rewrite of the first.
func (s *assignmentService) MarkCompleted(ctx context.Context, p *auth.Principal, assignmentID string) (*models.AssignmentView, error) {
	if p == nil {
		return nil, models.ErrForbidden
	}
	assignment, err := s.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.Archived() {
		return nil, models.NewValidationError("assignmentId", "assignment is archived")
	}

	pair := models.Where("assignmentId", assignmentID).And("userId", p.ID)
	existing, err := s.completions(ctx, pair)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		completion := &models.Completion{
			AssignmentID: assignmentID,
			UserID:       p.ID,
			CompletedAt:  now(),
		}
		fields, err := models.EncodeFields(completion)
		if err != nil {
			return nil, err
		}
		rec, err := s.store.Write(ctx, models.CompletionsCollection, CompletionID(assignmentID, p.ID), fields)
		if err != nil {
			return nil, fmt.Errorf("failed to mark assignment completed: %w", err)
		}
		completion.ID = rec.ID
		existing = append(existing, *completion)

		publishEvent(ctx, s.publisher, s.logger, p, &models.DomainEvent{
			Type:         models.EventAssignmentCompleted,
			UserID:       p.ID,
			AssignmentID: assignmentID,
			Title:        assignment.Title,
		})
		recordActivity(ctx, s.store, s.logger, p.ID, models.ActivityAssignmentSubmitted, assignment.Title,
			map[string]interface{}{"assignmentId": assignmentID})
	}

	scores, err := s.scores(ctx, pair)
	if err != nil {
		return nil, err
	}
	view := buildView(*assignment, p.ID, dedupCompletions(existing), latestScores(scores))
	return &view, nil
}

func (s *assignmentService) Review(ctx context.Context, p *auth.Principal, userID, assignmentID string) (*models.Review, error) {
	if err := requireParticipant(p, userID); err != nil {
		return nil, err
	}

	scores, err := s.scores(ctx, models.Where("assignmentId", assignmentID).And("userId", userID))
	if err != nil {
		return nil, err
	}
	score, ok := latestScores(scores)[pairKey(assignmentID, userID)]
	if !ok {
		return nil, fmt.Errorf("review for assignment %s: %w", assignmentID, models.ErrNotFound)
	}

	review := &models.Review{
		AssignmentID: assignmentID,
		GeneralScore: score.GeneralScore,
		Score:        formatScore(&score),
		Comments:     score.Comments,
		ReviewedAt:   score.CreatedAt,
	}
	if assignment, err := s.Get(ctx, assignmentID); err == nil {
		review.Title = assignment.Title
	}
	return review, nil
}

func (s *assignmentService) assignments(ctx context.Context) ([]models.Assignment, error) {
	records, err := s.store.Query(ctx, models.AssignmentsCollection, models.Query{}.Order("createdAt", false))
	if err != nil {
		return nil, err
	}
	out := make([]models.Assignment, 0, len(records))
	for _, rec := range records {
		a, err := decodeAssignment(&rec)
		if err != nil {
			s.logger.Warn().Err(err).Str("assignment_id", rec.ID).Msg("Skipping malformed assignment")
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *assignmentService) completions(ctx context.Context, q models.Query) ([]models.Completion, error) {
	records, err := s.store.Query(ctx, models.CompletionsCollection, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.Completion, 0, len(records))
	for _, rec := range records {
		var c models.Completion
		if err := rec.Decode(&c); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *assignmentService) scores(ctx context.Context, q models.Query) ([]models.Score, error) {
	records, err := s.store.Query(ctx, models.ScoresCollection, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.Score, 0, len(records))
	for _, rec := range records {
		var sc models.Score
		if err := rec.Decode(&sc); err == nil {
			out = append(out, sc)
		}
	}
	return out, nil
}

// DeriveState computes a user's view of one assignment. A score always wins over a completion.
func DeriveState(assignment models.Assignment, userID string, completions []models.Completion, scores []models.Score) models.AssignmentState {
	view := buildView(assignment, userID, dedupCompletions(completions), latestScores(scores))
	return view.State
}

// CompletionID is the deterministic id of a user's completion of an assignment.
func CompletionID(assignmentID, userID string) string {
	return assignmentID + "_" + userID
}

func buildView(a models.Assignment, userID string, completed map[string]models.Completion, scored map[string]models.Score) models.AssignmentView {
	key := pairKey(a.ID, userID)
	view := models.AssignmentView{Assignment: a, State: models.StatePending}
	if c, ok := completed[key]; ok {
		view.Completion = &c
		view.State = models.StateCompleted
	}
	if sc, ok := scored[key]; ok {
		view.Score = &sc
		view.State = models.StateReviewed
	}
	return view
}

// dedupCompletions keeps the earliest completion per (assignment, user).
func dedupCompletions(completions []models.Completion) map[string]models.Completion {
	out := make(map[string]models.Completion, len(completions))
	for _, c := range completions {
		key := pairKey(c.AssignmentID, c.UserID)
		if prev, ok := out[key]; ok && prev.CompletedAt <= c.CompletedAt {
			continue
		}
		out[key] = c
	}
	return out
}

// latestScores keeps the newest score per (assignment, user).
func latestScores(scores []models.Score) map[string]models.Score {
	out := make(map[string]models.Score, len(scores))
	for _, sc := range scores {
		key := pairKey(sc.AssignmentID, sc.UserID)
		if prev, ok := out[key]; ok && prev.CreatedAt >= sc.CreatedAt {
			continue
		}
		out[key] = sc
	}
	return out
}

func pairKey(assignmentID, userID string) string {
	return assignmentID + "\x00" + userID
}

// formatScore renders "value/outOf", or "N/A" when either part is missing.
func formatScore(score *models.Score) string {
	if score.ScoreValue == nil || score.ScoreOutOf == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*score.ScoreValue, 'f', -1, 64) + "/" + strconv.FormatFloat(*score.ScoreOutOf, 'f', -1, 64)
}

func decodeAssignment(rec *models.Record) (*models.Assignment, error) {
	var a models.Assignment
	if err := rec.Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}
