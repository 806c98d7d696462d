package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/models"
)

// RecordClient is the secondary transport: the same record operations over another instance's
// raw /records endpoints.
type RecordClient interface {
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	List(ctx context.Context, collection string, q models.Query) ([]models.Record, error)
	Put(ctx context.Context, rec *models.Record) error
	Patch(ctx context.Context, patch *models.Record) (*models.Record, error)
	Delete(ctx context.Context, collection, id string) error
}

type recordClient struct {
	baseURL    string
	endpoint   string
	token      string
	timeout    time.Duration
	retryCount int
	retryDelay time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// NewRecordClient sends token as the instance token on every request. retryCount is 0 unless an
// operator opts in; a failed write surfaces to the caller, who resubmits.
func NewRecordClient(baseURL, endpoint, token string, timeout time.Duration, retryCount int, retryDelay time.Duration, logger zerolog.Logger) RecordClient {
	if retryCount < 0 {
		retryCount = 0
	}
	return &recordClient{
		baseURL:    baseURL,
		endpoint:   endpoint,
		token:      token,
		timeout:    timeout,
		retryCount: retryCount,
		retryDelay: retryDelay,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// EncodeQuery renders a query as the URL parameters the records endpoint understands.
func EncodeQuery(q models.Query) (url.Values, error) {
	values := url.Values{}
	if len(q.Filters) > 0 {
		doc, err := q.FilterDocument()
		if err != nil {
			return nil, err
		}
		filter, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		values.Set("filter", string(filter))
	}
	if q.OrderBy != "" {
		values.Set("order", q.OrderBy)
		if q.Descending {
			values.Set("desc", "true")
		}
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values, nil
}

// DecodeQuery is the inverse of EncodeQuery.
func DecodeQuery(values url.Values) (models.Query, error) {
	var q models.Query
	if raw := values.Get("filter"); raw != "" {
		var doc map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return q, models.NewValidationError("filter", "must be a JSON object")
		}
		for field, value := range doc {
			q.Filters = append(q.Filters, models.Condition{Field: field, Value: value})
		}
	}
	q.OrderBy = values.Get("order")
	q.Descending = values.Get("desc") == "true"
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, models.NewValidationError("limit", "must be a non-negative integer")
		}
		q.Limit = limit
	}
	return q, nil
}

func (c *recordClient) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.documentURL(collection, id), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("records endpoint returned status %d: %s", status, string(body))
	}

	var resp envelope[models.Record]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	resp.Data.Collection = collection
	return &resp.Data, nil
}

func (c *recordClient) List(ctx context.Context, collection string, q models.Query) ([]models.Record, error) {
	values, err := EncodeQuery(q)
	if err != nil {
		return nil, err
	}
	target := c.collectionURL(collection)
	if len(values) > 0 {
		target += "?" + values.Encode()
	}

	status, body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("records endpoint returned status %d: %s", status, string(body))
	}

	var resp envelope[[]models.Record]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	for i := range resp.Data {
		resp.Data[i].Collection = collection
	}
	if resp.Data == nil {
		resp.Data = []models.Record{}
	}
	return resp.Data, nil
}

func (c *recordClient) Put(ctx context.Context, rec *models.Record) error {
	stored, err := c.send(ctx, http.MethodPut, rec)
	if err != nil {
		return err
	}
	rec.CreatedAt, rec.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (c *recordClient) Patch(ctx context.Context, patch *models.Record) (*models.Record, error) {
	return c.send(ctx, http.MethodPatch, patch)
}

func (c *recordClient) Delete(ctx context.Context, collection, id string) error {
	status, body, err := c.do(ctx, http.MethodDelete, c.documentURL(collection, id), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("records endpoint returned status %d: %s", status, string(body))
	}
	return nil
}

func (c *recordClient) send(ctx context.Context, method string, rec *models.Record) (*models.Record, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	status, body, err := c.do(ctx, method, c.documentURL(rec.Collection, rec.ID), payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("records endpoint returned status %d: %s", status, string(body))
	}

	var resp envelope[models.Record]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	resp.Data.Collection = rec.Collection
	return &resp.Data, nil
}

// do makes a single attempt by default. With retryCount > 0 it retries transport failures and 5xx
// responses with a linear backoff.
func (c *recordClient) do(ctx context.Context, method, target string, payload []byte) (int, []byte, error) {
	var lastErr error

	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Str("method", method).Str("url", target).Msg("Retrying records request")
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i)):
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set(auth.HeaderInstanceToken, c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("records endpoint returned status %d", resp.StatusCode)
			continue
		}
		return resp.StatusCode, data, nil
	}

	if c.retryCount == 0 {
		return 0, nil, fmt.Errorf("records request failed: %w", lastErr)
	}
	return 0, nil, fmt.Errorf("records request failed after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *recordClient) collectionURL(collection string) string {
	return c.baseURL + c.endpoint + "/" + url.PathEscape(collection)
}

func (c *recordClient) documentURL(collection, id string) string {
	return c.collectionURL(collection) + "/" + url.PathEscape(id)
}
