package rbac

import (
	"context"
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Allowed reports whether the role in ctx carries perm.
func Allowed(ctx context.Context, perm string) bool {
	return defaultChecker.Has(RoleFromContext(ctx), perm)
}

// CanActFor checks the caller in ctx against learnerID with the default policy.
func CanActFor(ctx context.Context, learnerID, ownPerm, allPerm string) bool {
	return defaultChecker.CanActFor(PrincipalFromContext(ctx), learnerID, ownPerm, allPerm)
}

func guard(ok func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ok(r) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return guard(func(r *http.Request) bool { return Allowed(r.Context(), perm) })
}

// RequireAny enforces that the role has at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(func(r *http.Request) bool {
		return defaultChecker.Any(RoleFromContext(r.Context()), perms...)
	})
}

// RequireAll enforces that the role has all of the permissions.
func RequireAll(perms ...string) func(http.Handler) http.Handler {
	return guard(func(r *http.Request) bool {
		return defaultChecker.All(RoleFromContext(r.Context()), perms...)
	})
}

// RequireLearner lets the learner named by learnerOf(r) through with ownPerm
// and everyone holding allPerm.
func RequireLearner(ownPerm, allPerm string, learnerOf func(r *http.Request) string) func(http.Handler) http.Handler {
	return guard(func(r *http.Request) bool {
		return CanActFor(r.Context(), learnerOf(r), ownPerm, allPerm)
	})
}
