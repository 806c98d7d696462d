package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaderResolver(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    *Principal
		wantErr bool
	}{
		{
			name:    "admin",
			headers: map[string]string{HeaderUserID: "a1", HeaderUserRole: "Admin", HeaderUserName: "Ann"},
			want:    &Principal{ID: "a1", Role: RoleAdmin, Name: "Ann"},
		},
		{
			name:    "role defaults to student",
			headers: map[string]string{HeaderUserID: "s1"},
			want:    &Principal{ID: "s1", Role: RoleStudent},
		},
		{
			name:    "missing id",
			headers: map[string]string{HeaderUserRole: "admin"},
			wantErr: true,
		},
		{
			name:    "unknown role",
			headers: map[string]string{HeaderUserID: "x", HeaderUserRole: "root"},
			wantErr: true,
		},
	}

	resolver := NewHeaderResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, err := resolver.Resolve(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if *got != *tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	var status int
	onError := func(w http.ResponseWriter, code int, _ string) {
		status = code
		w.WriteHeader(code)
	}
	var seen *Principal
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Authenticate(NewHeaderResolver(), onError)(RequireAdmin(onError)(final))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if status != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", status)
	}

	status = 0
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderUserID, "s1")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if status != http.StatusForbidden {
		t.Errorf("student status = %d, want 403", status)
	}

	status = 0
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderUserID, "a1")
	r.Header.Set(HeaderUserRole, RoleAdmin)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent || seen == nil || seen.ID != "a1" {
		t.Errorf("admin code = %d principal = %+v", rec.Code, seen)
	}
}

func TestRequireInstanceToken(t *testing.T) {
	onError := func(w http.ResponseWriter, code int, _ string) {
		w.WriteHeader(code)
	}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		sent       string
		want       int
	}{
		{name: "matching token", configured: "s3cret", sent: "s3cret", want: http.StatusNoContent},
		{name: "missing token", configured: "s3cret", want: http.StatusUnauthorized},
		{name: "wrong token", configured: "s3cret", sent: "guess", want: http.StatusForbidden},
		{name: "unconfigured rejects all", configured: "", sent: "anything", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, "/", nil)
			if tt.sent != "" {
				r.Header.Set(HeaderInstanceToken, tt.sent)
			}
			// identity headers never substitute for the instance token
			r.Header.Set(HeaderUserID, "a1")
			r.Header.Set(HeaderUserRole, RoleAdmin)
			w := httptest.NewRecorder()
			RequireInstanceToken(tt.configured, onError)(final).ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
