package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

func TestJWTMiddlewareSetsPrincipal(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("ana", "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var sub, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || sub != "ana" || role != "student" {
		t.Fatalf("code=%d sub=%q role=%q", rec.Code, sub, role)
	}

	for name, hdr := range map[string]string{
		"missing":      "",
		"garbage":      "Bearer not-a-token",
		"other secret": "Bearer " + mustIssue(t, NewAuthService("other"), "ana", "admin"),
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: code=%d", name, rec.Code)
		}
	}
}

func TestParseRejectsExpired(t *testing.T) {
	a := NewAuthService("s")
	a.now = func() time.Time { return time.Now().Add(-9 * time.Hour) }
	tok := mustIssue(t, a, "ana", "student")
	if _, err := NewAuthService("s").Parse(tok); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestLoginHandler(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	a := NewAuthService("s")
	h := LoginHandler(a, LoginOptions{AdminUser: "root", AdminPassHash: string(hash), DevLogins: true})

	cases := []struct {
		body map[string]string
		code int
		role string
	}{
		{map[string]string{"username": "root", "password": "s3cret"}, 200, "admin"},
		{map[string]string{"username": "root", "password": "nope"}, 401, ""},
		{map[string]string{"username": "ana", "password": "ana", "role": "student"}, 200, "student"},
		{map[string]string{"username": "ana", "password": "ana", "role": "admin"}, 401, ""},
		{map[string]string{"username": "ana", "password": "x", "role": "teacher"}, 401, ""},
	}
	for _, c := range cases {
		b, _ := json.Marshal(c.body)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(b)))
		if rec.Code != c.code {
			t.Fatalf("%v: code=%d", c.body, rec.Code)
		}
		if c.code != 200 {
			continue
		}
		var out map[string]string
		json.NewDecoder(rec.Body).Decode(&out)
		claims, err := a.Parse(out["access_token"])
		if err != nil || claims.Role != c.role {
			t.Fatalf("%v: claims=%+v err=%v", c.body, claims, err)
		}
	}

	prod := LoginHandler(a, LoginOptions{AdminUser: "root", AdminPassHash: string(hash)})
	rec := httptest.NewRecorder()
	prod(rec, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{"username":"ana","password":"ana","role":"student"}`))))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("dev login accepted with DevLogins off")
	}
}

func mustIssue(t *testing.T, a *AuthService, sub, role string) string {
	t.Helper()
	tok, err := a.IssueJWT(sub, role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}
