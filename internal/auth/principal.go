package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"

	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"

	// HeaderInstanceToken carries the shared secret instances present to each other's record endpoints.
	HeaderInstanceToken = "X-Instance-Token"
)

var ErrNoPrincipal = errors.New("no authenticated principal")

// Principal is the authenticated actor behind a request.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Key identifies the principal across connections, e.g. "admin:42".
func (p Principal) Key() string {
	return p.Role + ":" + p.ID
}

// PrincipalResolver extracts the caller from a request.
type PrincipalResolver interface {
	Resolve(r *http.Request) (*Principal, error)
}

type headerResolver struct{}

// NewHeaderResolver trusts identity headers set by the gateway in front of the service.
func NewHeaderResolver() PrincipalResolver {
	return headerResolver{}
}

func (headerResolver) Resolve(r *http.Request) (*Principal, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return nil, ErrNoPrincipal
	}

	role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))
	switch role {
	case RoleAdmin, RoleStudent:
	case "":
		role = RoleStudent
	default:
		return nil, ErrNoPrincipal
	}

	return &Principal{
		ID:   id,
		Role: role,
		Name: strings.TrimSpace(r.Header.Get(HeaderUserName)),
	}, nil
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}
