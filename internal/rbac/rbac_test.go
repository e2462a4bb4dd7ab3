package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckerDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", "attempt:submit", true},
		{"student", "attempt:grade", false},
		{"student", "attempt:view-all", false},
		{"teacher", "attempt:grade", true},
		{"teacher", "stats:report", true},
		{"teacher", "attempt:submit", false},
		{"admin", "anything:at-all", true},
		{"ghost", "assessment:view", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Fatalf("%s/%s = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
	if !c.Any("student", "attempt:grade", "attempt:save") || c.All("student", "attempt:grade", "attempt:save") {
		t.Fatalf("Any/All mismatch")
	}
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := Require("attempt:grade")(ok)
	for role, want := range map[string]int{"teacher": 200, "student": 403, "": 403} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %q: code %d, want %d", role, rec.Code, want)
		}
	}
	if Allowed(context.Background(), "assessment:view") {
		t.Fatalf("anonymous context allowed")
	}
}

func TestCanActFor(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		name    string
		p       Principal
		learner string
		want    bool
	}{
		{"own history", Principal{"ana", RoleStudent}, "ana", true},
		{"other learner", Principal{"ben", RoleStudent}, "ana", false},
		{"reviewer", Principal{"tess", RoleTeacher}, "ana", true},
		{"admin", Principal{"root", RoleAdmin}, "ana", true},
		{"no role", Principal{Subject: "ana"}, "ana", false},
		{"empty subject", Principal{Role: RoleStudent}, "", false},
	}
	for _, tc := range cases {
		if got := c.CanActFor(tc.p, tc.learner, "history:view-own", "history:view-all"); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
	// a teacher has no own-history grant, so only view-all lets them in
	if NewChecker(map[string][]string{RoleTeacher: {"history:view-own"}}).CanActFor(Principal{"tess", RoleTeacher}, "ana", "history:view-own", "history:view-all") {
		t.Fatalf("own grant leaked to another learner")
	}
}

func TestRequireLearner(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RequireLearner("history:view-own", "history:view-all", func(*http.Request) string { return "ana" })(ok)
	for _, tc := range []struct {
		p    Principal
		want int
	}{
		{Principal{"ana", RoleStudent}, 200},
		{Principal{"ben", RoleStudent}, 403},
		{Principal{"tess", RoleTeacher}, 200},
		{Principal{}, 403},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(context.Background(), tc.p))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%+v: code %d, want %d", tc.p, rec.Code, tc.want)
		}
	}
}

func TestWithRoleKeepsSubject(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{Subject: "ana", Role: RoleStudent})
	ctx = WithRole(ctx, RoleTeacher)
	if p := PrincipalFromContext(ctx); p.Subject != "ana" || p.Role != RoleTeacher {
		t.Fatalf("principal = %+v", p)
	}
}
