package httpd

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/service/integration"
)

// recordTarget reads the collection and id path parameters. chi matches on the raw path, so
// a nested collection arrives with its slashes still escaped.
func recordTarget(r *http.Request) (string, string, error) {
	collection, err := url.PathUnescape(chi.URLParam(r, "collection"))
	if err != nil || collection == "" {
		return "", "", models.NewValidationError("collection", "invalid collection")
	}
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		return "", "", models.NewValidationError("id", "invalid id")
	}
	return collection, id, nil
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	collection, id, err := recordTarget(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	rec, err := h.records.Get(r.Context(), collection, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}

	writeSuccess(w, rec)
}

func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	collection, _, err := recordTarget(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	q, err := integration.DecodeQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.records.List(r.Context(), collection, q)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if records == nil {
		records = []models.Record{}
	}

	writeSuccess(w, records)
}

func (h *Handler) PutRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.decodeRecord(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := models.ValidateFields(rec.Collection, rec.Fields); err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.records.Put(r.Context(), rec); err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, rec)
}

func (h *Handler) PatchRecord(w http.ResponseWriter, r *http.Request) {
	patch, err := h.decodeRecord(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := models.ValidatePartial(patch.Collection, patch.Fields); err != nil {
		h.handleError(w, r, err)
		return
	}

	rec, err := h.records.Patch(r.Context(), patch)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeSuccess(w, rec)
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	collection, id, err := recordTarget(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.records.Delete(r.Context(), collection, id); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeRecord reads a record body; the path decides its identity.
func (h *Handler) decodeRecord(r *http.Request) (*models.Record, error) {
	collection, id, err := recordTarget(r)
	if err != nil {
		return nil, err
	}

	var rec models.Record
	if err := decodeBody(r, &rec); err != nil {
		return nil, err
	}
	fields, err := models.NormalizeFields(rec.Fields)
	if err != nil {
		return nil, models.NewValidationError("fields", err.Error())
	}

	rec.Collection = collection
	rec.ID = id
	rec.Fields = fields
	return &rec, nil
}
