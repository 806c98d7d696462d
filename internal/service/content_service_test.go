package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
)

// prefixLinker resolves object keys under a fixed host.
type prefixLinker struct {
	uploaded map[string]string
}

func (l *prefixLinker) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" || integration.IsAbsoluteURL(ref) {
		return ref, nil
	}
	return "https://files.test/" + ref, nil
}

func (l *prefixLinker) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if l.uploaded == nil {
		l.uploaded = make(map[string]string)
	}
	l.uploaded[key] = string(data)
	return key, nil
}

func TestNotesAndVideos(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewContentService(env.facade, &prefixLinker{}, env.publisher, zerolog.Nop())

	note, err := svc.SaveNote(ctx, admin, "", &models.NoteRequest{Title: "Week 1", Module: "A", URL: "notes/week1.pdf"})
	if err != nil {
		t.Fatalf("SaveNote() error = %v", err)
	}
	if _, err := svc.SaveNote(ctx, admin, note.ID, &models.NoteRequest{Title: "Week 1 (v2)", Module: "A", URL: "https://docs.test/w1"}); err != nil {
		t.Fatalf("SaveNote() update error = %v", err)
	}
	if _, err := svc.SaveNote(ctx, admin, "", &models.NoteRequest{Title: "Intro", Module: "0", URL: "notes/intro.pdf"}); err != nil {
		t.Fatal(err)
	}

	notes, err := svc.ListNotes(ctx)
	if err != nil || len(notes) != 2 {
		t.Fatalf("ListNotes() = %+v, %v", notes, err)
	}
	if notes[0].Title != "Intro" || notes[0].URL != "https://files.test/notes/intro.pdf" {
		t.Errorf("notes[0] = %+v", notes[0])
	}
	if notes[1].URL != "https://docs.test/w1" {
		t.Errorf("notes[1] = %+v", notes[1])
	}

	if err := svc.DeleteNote(ctx, student, note.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("DeleteNote() by student error = %v", err)
	}
	if err := svc.DeleteNote(ctx, admin, note.ID); err != nil {
		t.Fatal(err)
	}
	if notes, _ := svc.ListNotes(ctx); len(notes) != 1 {
		t.Errorf("notes after delete = %+v", notes)
	}

	if _, err := svc.SaveVideo(ctx, admin, "", &models.VideoRequest{URL: "not-a-url"}); !models.IsValidation(err) {
		t.Errorf("SaveVideo() invalid url error = %v", err)
	}
	video, err := svc.SaveVideo(ctx, admin, "", &models.VideoRequest{URL: "https://youtu.be/abc", Title: "Lecture"})
	if err != nil {
		t.Fatalf("SaveVideo() error = %v", err)
	}
	videos, err := svc.ListVideos(ctx)
	if err != nil || len(videos) != 1 || videos[0].ID != video.ID {
		t.Errorf("ListVideos() = %+v, %v", videos, err)
	}
	if err := svc.DeleteVideo(ctx, admin, video.ID); err != nil {
		t.Fatal(err)
	}
}

func TestIssueCertificate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewContentService(env.facade, &prefixLinker{}, env.publisher, zerolog.Nop())

	cert, err := svc.IssueCertificate(ctx, admin, &models.CertificateRequest{
		UserID:    student.ID,
		UserName:  student.Name,
		UserEmail: "sam@example.com",
		AccessURL: "certs/sam.pdf",
	})
	if err != nil {
		t.Fatalf("IssueCertificate() error = %v", err)
	}
	if cert.AccessURL != "https://files.test/certs/sam.pdf" || cert.IssuedBy != admin.Name {
		t.Errorf("certificate = %+v", cert)
	}

	user, err := env.facade.Read(ctx, models.UsersCollection, student.ID)
	if err != nil || user == nil {
		t.Fatalf("user record = %v, %v", user, err)
	}
	if !user.Bool("certified") || user.Text("certificateUrl") != "certs/sam.pdf" || user.Text("certifiedDate") == "" {
		t.Errorf("user fields = %+v", user.Fields)
	}

	if got := env.publisher.types(); len(got) != 1 || got[0] != models.EventCertificateIssued {
		t.Errorf("published = %v", got)
	}

	mine, err := svc.ListCertificates(ctx, student, "")
	if err != nil || len(mine) != 1 {
		t.Errorf("ListCertificates(student) = %+v, %v", mine, err)
	}
	if theirs, _ := svc.ListCertificates(ctx, other, ""); len(theirs) != 0 {
		t.Errorf("ListCertificates(other) = %+v", theirs)
	}
	if _, err := svc.ListCertificates(ctx, other, student.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("ListCertificates() for another user error = %v", err)
	}

	if _, err := svc.IssueCertificate(ctx, admin, &models.CertificateRequest{UserID: student.ID, AccessURL: "x", UserEmail: "nope"}); !models.IsValidation(err) {
		t.Errorf("IssueCertificate() invalid email error = %v", err)
	}
}

func TestUploadFile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	linker := &prefixLinker{}
	svc := NewContentService(env.facade, linker, env.publisher, zerolog.Nop())

	key, err := svc.UploadFile(ctx, admin, `C:\docs\notes.pdf`, strings.NewReader("pdf"), 3, "application/pdf")
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if !strings.HasSuffix(key, "/notes.pdf") || linker.uploaded[key] != "pdf" {
		t.Errorf("key = %q, uploaded = %v", key, linker.uploaded)
	}

	direct := NewContentService(env.facade, integration.NewDirectLinker(), env.publisher, zerolog.Nop())
	if _, err := direct.UploadFile(ctx, admin, "a.pdf", strings.NewReader(""), 0, ""); !errors.Is(err, integration.ErrBlobStorageDisabled) {
		t.Errorf("UploadFile() without storage error = %v", err)
	}
	if _, err := svc.UploadFile(ctx, student, "a.pdf", strings.NewReader(""), 0, ""); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("UploadFile() by student error = %v", err)
	}
}
