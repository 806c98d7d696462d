package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
	"github.com/RubachokBoss/learning-platform/internal/store"
)

// ContentService manages course notes, videos and certificates. Stored links may be object keys;
// they are resolved to browser links on read.
type ContentService interface {
	ListNotes(ctx context.Context) ([]models.Note, error)
	SaveNote(ctx context.Context, p *auth.Principal, id string, req *models.NoteRequest) (*models.Note, error)
	DeleteNote(ctx context.Context, p *auth.Principal, id string) error

	ListVideos(ctx context.Context) ([]models.Video, error)
	SaveVideo(ctx context.Context, p *auth.Principal, id string, req *models.VideoRequest) (*models.Video, error)
	DeleteVideo(ctx context.Context, p *auth.Principal, id string) error

	IssueCertificate(ctx context.Context, p *auth.Principal, req *models.CertificateRequest) (*models.Certificate, error)
	ListCertificates(ctx context.Context, p *auth.Principal, userID string) ([]models.Certificate, error)
	DeleteCertificate(ctx context.Context, p *auth.Principal, id string) error

	UploadFile(ctx context.Context, p *auth.Principal, name string, body io.Reader, size int64, contentType string) (string, error)
}

type contentService struct {
	store     store.Facade
	linker    integration.BlobLinker
	publisher integration.EventPublisher
	logger    zerolog.Logger
}

func NewContentService(facade store.Facade, linker integration.BlobLinker, publisher integration.EventPublisher, logger zerolog.Logger) ContentService {
	return &contentService{
		store:     facade,
		linker:    linker,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *contentService) ListNotes(ctx context.Context) ([]models.Note, error) {
	records, err := s.store.Query(ctx, models.NotesCollection, models.Query{}.Order("module", false))
	if err != nil {
		return nil, err
	}
	notes := make([]models.Note, 0, len(records))
	for _, rec := range records {
		var n models.Note
		if err := rec.Decode(&n); err != nil {
			continue
		}
		n.URL = s.resolve(ctx, n.URL)
		notes = append(notes, n)
	}
	return notes, nil
}

// SaveNote creates a note when id is empty and replaces it otherwise.
func (s *contentService) SaveNote(ctx context.Context, p *auth.Principal, id string, req *models.NoteRequest) (*models.Note, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}

	note := &models.Note{Title: req.Title, Module: req.Module, URL: req.URL}
	fields, err := models.EncodeFields(note)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Write(ctx, models.NotesCollection, id, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	note.ID = rec.ID
	return note, nil
}

func (s *contentService) DeleteNote(ctx context.Context, p *auth.Principal, id string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	return s.store.Remove(ctx, models.NotesCollection, id)
}

func (s *contentService) ListVideos(ctx context.Context) ([]models.Video, error) {
	records, err := s.store.Query(ctx, models.VideosCollection, models.Query{}.Order("createdAt", true))
	if err != nil {
		return nil, err
	}
	videos := make([]models.Video, 0, len(records))
	for _, rec := range records {
		var v models.Video
		if err := rec.Decode(&v); err == nil {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

func (s *contentService) SaveVideo(ctx context.Context, p *auth.Principal, id string, req *models.VideoRequest) (*models.Video, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}

	video := &models.Video{URL: req.URL, Title: req.Title, Description: req.Description}
	fields, err := models.EncodeFields(video)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Write(ctx, models.VideosCollection, id, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to save video: %w", err)
	}
	video.ID = rec.ID
	return video, nil
}

func (s *contentService) DeleteVideo(ctx context.Context, p *auth.Principal, id string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	return s.store.Remove(ctx, models.VideosCollection, id)
}

// IssueCertificate stores the certificate, then marks the user record certified. The second write
// is best effort.
func (s *contentService) IssueCertificate(ctx context.Context, p *auth.Principal, req *models.CertificateRequest) (*models.Certificate, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	if err := models.ValidateStruct(req); err != nil {
		return nil, err
	}

	cert := &models.Certificate{
		UserID:    req.UserID,
		UserName:  req.UserName,
		UserEmail: req.UserEmail,
		AccessURL: req.AccessURL,
		IssuedBy:  p.Name,
		IssuedAt:  now(),
	}
	if cert.IssuedBy == "" {
		cert.IssuedBy = p.ID
	}
	fields, err := models.EncodeFields(cert)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Write(ctx, models.CertificatesCollection, uuid.NewString(), fields)
	if err != nil {
		return nil, fmt.Errorf("failed to issue certificate: %w", err)
	}
	cert.ID = rec.ID

	if _, err := s.store.Merge(ctx, models.UsersCollection, req.UserID, models.Fields{
		"certified":      true,
		"certifiedDate":  cert.IssuedAt,
		"certificateUrl": cert.AccessURL,
	}); err != nil {
		s.logger.Warn().Err(err).
			Str("user_id", req.UserID).
			Str("certificate_id", cert.ID).
			Msg("Certificate issued but user record not updated")
	}

	cert.AccessURL = s.resolve(ctx, cert.AccessURL)

	publishEvent(ctx, s.publisher, s.logger, p, &models.DomainEvent{
		Type:   models.EventCertificateIssued,
		UserID: req.UserID,
		Title:  "Certificate issued",
		URL:    cert.AccessURL,
	})

	s.logger.Info().
		Str("certificate_id", cert.ID).
		Str("user_id", cert.UserID).
		Msg("Certificate issued")

	return cert, nil
}

// ListCertificates returns every certificate for admins; students only see their own.
func (s *contentService) ListCertificates(ctx context.Context, p *auth.Principal, userID string) ([]models.Certificate, error) {
	q := models.Query{}.Order("issuedAt", true)
	switch {
	case p == nil:
		return nil, models.ErrForbidden
	case !p.IsAdmin():
		if userID != "" && userID != p.ID {
			return nil, models.ErrForbidden
		}
		q = q.And("userId", p.ID)
	case userID != "":
		q = q.And("userId", userID)
	}

	records, err := s.store.Query(ctx, models.CertificatesCollection, q)
	if err != nil {
		return nil, err
	}
	certs := make([]models.Certificate, 0, len(records))
	for _, rec := range records {
		var c models.Certificate
		if err := rec.Decode(&c); err != nil {
			continue
		}
		c.AccessURL = s.resolve(ctx, c.AccessURL)
		certs = append(certs, c)
	}
	return certs, nil
}

func (s *contentService) DeleteCertificate(ctx context.Context, p *auth.Principal, id string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	return s.store.Remove(ctx, models.CertificatesCollection, id)
}

// UploadFile stores an object and returns its key, usable as a note url or certificate accessUrl.
func (s *contentService) UploadFile(ctx context.Context, p *auth.Principal, name string, body io.Reader, size int64, contentType string) (string, error) {
	if err := requireAdmin(p); err != nil {
		return "", err
	}
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "", models.NewValidationError("file", "file name is required")
	}
	key := uuid.NewString() + "/" + base
	return s.linker.Upload(ctx, key, body, size, contentType)
}

// resolve falls back to the stored reference when a link cannot be produced.
func (s *contentService) resolve(ctx context.Context, ref string) string {
	link, err := s.linker.Resolve(ctx, ref)
	if err != nil {
		s.logger.Warn().Err(err).Str("ref", ref).Msg("Failed to resolve file link")
		return ref
	}
	return link
}
