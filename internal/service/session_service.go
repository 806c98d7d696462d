package service

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
	"github.com/RubachokBoss/learning-platform/internal/store"
)

var meetingCode = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// SessionService drives the live session documents sessions/current and sessions/next.
type SessionService interface {
	Sessions(ctx context.Context) (*models.Sessions, error)
	Save(ctx context.Context, p *auth.Principal, slot string, req *models.SessionRequest) (*models.Session, error)
	Start(ctx context.Context, p *auth.Principal) (*models.StartSessionResponse, error)
	Stop(ctx context.Context, p *auth.Principal) (*models.Session, error)
	ClearNext(ctx context.Context, p *auth.Principal) error
}

type sessionService struct {
	store          store.Facade
	publisher      integration.EventPublisher
	meetingBaseURL string
	logger         zerolog.Logger
}

func NewSessionService(facade store.Facade, publisher integration.EventPublisher, meetingBaseURL string, logger zerolog.Logger) SessionService {
	return &sessionService{
		store:          facade,
		publisher:      publisher,
		meetingBaseURL: meetingBaseURL,
		logger:         logger,
	}
}

func (s *sessionService) Sessions(ctx context.Context) (*models.Sessions, error) {
	current, err := s.slot(ctx, models.SlotCurrent)
	if err != nil {
		return nil, err
	}
	next, err := s.slot(ctx, models.SlotNext)
	if err != nil {
		return nil, err
	}
	return &models.Sessions{Current: current, Next: next}, nil
}

// Save writes a slot. The next slot is always inactive; saving current keeps its active flag.
func (s *sessionService) Save(ctx context.Context, p *auth.Principal, slot string, req *models.SessionRequest) (*models.Session, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if slot != models.SlotCurrent && slot != models.SlotNext {
		return nil, models.NewValidationError("slot", "must be current or next")
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}
	room, err := NormalizeRoom(req.Room, s.meetingBaseURL)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		Title:      req.Title,
		Topic:      req.Topic,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Instructor: req.Instructor,
		Room:       room,
	}
	if slot == models.SlotCurrent {
		existing, err := s.slot(ctx, models.SlotCurrent)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			session.Active = existing.Active
		}
	}

	if err := s.write(ctx, slot, session); err != nil {
		return nil, err
	}

	s.logger.Info().Str("slot", slot).Str("title", session.Title).Msg("Session saved")
	return session, nil
}

// Start promotes next into current when next exists, otherwise reactivates current as it is.
// Only the first path guarantees next is empty afterwards.
func (s *sessionService) Start(ctx context.Context, p *auth.Principal) (*models.StartSessionResponse, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}

	next, err := s.slot(ctx, models.SlotNext)
	if err != nil {
		return nil, err
	}

	var session *models.Session
	if next != nil {
		session = next
		session.Active = true
		if err := s.write(ctx, models.SlotCurrent, session); err != nil {
			return nil, err
		}
		if err := s.store.Remove(ctx, models.SessionsCollection, models.SlotNext); err != nil {
			return nil, fmt.Errorf("session started but next slot not cleared: %w", err)
		}
	} else {
		current, err := s.slot(ctx, models.SlotCurrent)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, fmt.Errorf("no session scheduled: %w", models.ErrNotFound)
		}
		rec, err := s.store.Merge(ctx, models.SessionsCollection, models.SlotCurrent, models.Fields{"active": true})
		if err != nil {
			return nil, fmt.Errorf("failed to start session: %w", err)
		}
		if session, err = decodeSession(rec); err != nil {
			return nil, err
		}
	}

	publishEvent(ctx, s.publisher, s.logger, p, &models.DomainEvent{
		Type:  models.EventSessionStarted,
		Title: session.Title,
		URL:   session.Room,
	})

	s.logger.Info().
		Str("title", session.Title).
		Bool("from_next", next != nil).
		Msg("Session started")

	return &models.StartSessionResponse{Session: session, JoinURL: session.Room}, nil
}

// Stop deactivates current and keeps its fields for display as the last session.
func (s *sessionService) Stop(ctx context.Context, p *auth.Principal) (*models.Session, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}

	current, err := s.slot(ctx, models.SlotCurrent)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("no current session: %w", models.ErrNotFound)
	}

	rec, err := s.store.Merge(ctx, models.SessionsCollection, models.SlotCurrent, models.Fields{"active": false})
	if err != nil {
		return nil, fmt.Errorf("failed to stop session: %w", err)
	}
	session, err := decodeSession(rec)
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.publisher, s.logger, p, &models.DomainEvent{
		Type:  models.EventSessionStopped,
		Title: session.Title,
	})

	s.logger.Info().Str("title", session.Title).Msg("Session stopped")
	return session, nil
}

func (s *sessionService) ClearNext(ctx context.Context, p *auth.Principal) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	return s.store.Remove(ctx, models.SessionsCollection, models.SlotNext)
}

func (s *sessionService) slot(ctx context.Context, slot string) (*models.Session, error) {
	rec, err := s.store.Read(ctx, models.SessionsCollection, slot)
	if err != nil || rec == nil {
		return nil, err
	}
	return decodeSession(rec)
}

func (s *sessionService) write(ctx context.Context, slot string, session *models.Session) error {
	fields, err := models.EncodeFields(session)
	if err != nil {
		return err
	}
	if _, err := s.store.Write(ctx, models.SessionsCollection, slot, fields); err != nil {
		return fmt.Errorf("failed to save %s session: %w", slot, err)
	}
	return nil
}

// NormalizeRoom accepts an absolute http(s) URL or a bare meeting code, which is expanded against
// baseURL. An empty room stays empty.
func NormalizeRoom(raw, baseURL string) (string, error) {
	room := strings.TrimSpace(raw)
	if room == "" {
		return "", nil
	}
	if meetingCode.MatchString(room) {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		return baseURL + room, nil
	}
	u, err := url.Parse(room)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return u.String(), nil
	}
	return "", models.NewValidationError("room", "must be an absolute URL or a meeting code")
}

func decodeSession(rec *models.Record) (*models.Session, error) {
	var session models.Session
	if err := rec.Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}
