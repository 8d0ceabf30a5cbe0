package rolepolicy

import "strings"

// Role is a coarse authorization label. The lattice is total:
// user < moderator < admin.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

var ranks = map[Role]int{
	RoleUser:      0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

// Valid reports whether r is one of the three known roles.
func Valid(r Role) bool {
	_, ok := ranks[r]
	return ok
}

// AtLeast reports whether r admits operations gated at min.
// Unknown roles never pass a gate.
func AtLeast(r, min Role) bool {
	rr, ok := ranks[r]
	if !ok {
		return false
	}
	return rr >= ranks[min]
}

// Rule maps an email predicate to a role. First match wins.
type Rule struct {
	Match func(email string) bool
	Role  Role
}

// Policy derives a role from an email address. It is consulted at
// upsert-on-login and again on every role-gated request, so editing
// the rule set takes effect on the next request without re-login.
type Policy struct {
	rules []Rule
}

// New builds the default rule set. adminDomain, when non-empty, grants
// admin to every address under that domain.
func New(adminDomain string) *Policy {
	rules := []Rule{
		{Match: func(e string) bool { return strings.Contains(e, "admin") }, Role: RoleAdmin},
	}
	if adminDomain != "" {
		domain := strings.ToLower(adminDomain)
		if !strings.HasPrefix(domain, "@") {
			domain = "@" + domain
		}
		rules = append(rules, Rule{
			Match: func(e string) bool { return strings.HasSuffix(e, domain) },
			Role:  RoleAdmin,
		})
	}
	rules = append(rules,
		Rule{Match: func(e string) bool { return strings.Contains(e, "moderator") }, Role: RoleModerator},
		Rule{Match: func(e string) bool { return strings.Contains(e, "mod") }, Role: RoleModerator},
	)
	return &Policy{rules: rules}
}

// RoleOf normalizes the email to lowercase and applies the rules in
// order. Unmatched emails default to the plain user role.
func (p *Policy) RoleOf(email string) Role {
	e := strings.ToLower(strings.TrimSpace(email))
	for _, r := range p.rules {
		if r.Match(e) {
			return r.Role
		}
	}
	return RoleUser
}
