package auth

import (
	"context"

	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

// principal maps verified claims to the caller the handlers see.
func (c *Claims) principal() rbac.Principal {
	return rbac.Principal{Subject: c.Sub, Role: c.Role}
}

// SubjectFromContext returns the learner or reviewer id of the caller.
func SubjectFromContext(ctx context.Context) string {
	return rbac.PrincipalFromContext(ctx).Subject
}
