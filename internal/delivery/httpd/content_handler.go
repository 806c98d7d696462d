package httpd

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.contentService.ListNotes(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}

	writeSuccess(w, notes)
}

func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	h.saveNote(w, r, "", http.StatusCreated)
}

func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	h.saveNote(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) saveNote(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req models.NoteRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	note, err := h.contentService.SaveNote(r.Context(), principal(r), id, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccessStatus(w, status, note)
}

func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.contentService.DeleteNote(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.contentService.ListVideos(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}

	writeSuccess(w, videos)
}

func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	h.saveVideo(w, r, "", http.StatusCreated)
}

func (h *Handler) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	h.saveVideo(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) saveVideo(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req models.VideoRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	video, err := h.contentService.SaveVideo(r.Context(), principal(r), id, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccessStatus(w, status, video)
}

func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := h.contentService.DeleteVideo(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	certificates, err := h.contentService.ListCertificates(r.Context(), principal(r), targetUser(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if certificates == nil {
		certificates = []models.Certificate{}
	}

	writeSuccess(w, certificates)
}

func (h *Handler) IssueCertificate(w http.ResponseWriter, r *http.Request) {
	var req models.CertificateRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	certificate, err := h.contentService.IssueCertificate(r.Context(), principal(r), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccessStatus(w, http.StatusCreated, certificate)
}

func (h *Handler) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	if err := h.contentService.DeleteCertificate(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, http.StatusBadRequest, "Content-Type must be multipart/form-data")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key, err := h.contentService.UploadFile(r.Context(), principal(r), header.Filename, file, header.Size, contentType)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccessStatus(w, http.StatusCreated, map[string]string{
		"key":  key,
		"name": header.Filename,
	})
}
