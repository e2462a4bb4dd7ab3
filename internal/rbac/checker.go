package rbac

import (
	"context"
	"strings"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// grants is one role's permission set. Patterns ending in '*' match by prefix.
type grants struct {
	all      bool
	exact    map[string]bool
	prefixes []string
}

func (g grants) allows(perm string) bool {
	if g.all || g.exact[perm] {
		return true
	}
	for _, p := range g.prefixes {
		if strings.HasPrefix(perm, p) {
			return true
		}
	}
	return false
}

// Checker answers permission questions for a fixed role policy.
type Checker struct {
	roles map[string]grants
}

// NewChecker compiles policy; nil means RolePermissions.
func NewChecker(policy map[string][]string) *Checker {
	if policy == nil {
		policy = RolePermissions
	}
	c := &Checker{roles: make(map[string]grants, len(policy))}
	for role, perms := range policy {
		g := grants{exact: map[string]bool{}}
		for _, p := range perms {
			switch {
			case p == "*":
				g.all = true
			case strings.HasSuffix(p, "*"):
				g.prefixes = append(g.prefixes, strings.TrimSuffix(p, "*"))
			default:
				g.exact[p] = true
			}
		}
		c.roles[role] = g
	}
	return c
}

func (c *Checker) Has(role, perm string) bool {
	g, ok := c.roles[role]
	return ok && g.allows(perm)
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func (c *Checker) All(role string, perms ...string) bool {
	for _, p := range perms {
		if !c.Has(role, p) {
			return false
		}
	}
	return len(perms) > 0
}

// CanActFor reports whether p may touch data owned by learnerID: reviewers
// holding allPerm always can, the learner only with ownPerm.
func (c *Checker) CanActFor(p Principal, learnerID, ownPerm, allPerm string) bool {
	if p.Role == "" {
		return false
	}
	if c.Has(p.Role, allPerm) {
		return true
	}
	return p.Subject != "" && p.Subject == learnerID && c.Has(p.Role, ownPerm)
}

// Principal is the authenticated caller: a learner or reviewer id and its role.
type Principal struct {
	Subject string
	Role    string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// WithRole sets only the role, keeping any subject already present.
func WithRole(ctx context.Context, role string) context.Context {
	p := PrincipalFromContext(ctx)
	p.Role = role
	return WithPrincipal(ctx, p)
}

func RoleFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).Role }
