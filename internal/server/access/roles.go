package access

import "github.com/dmitrijs2005/gatekeeper/internal/server/models"

// Universe lists every statement the application knows about.
var Universe = Statements{
	"user":    {"create", "list", "set-role", "ban", "impersonate", "delete", "set-password", "get", "update"},
	"session": {"list", "revoke", "delete"},
	"account": {"update", "change-password"},
	"posts":   {"create", "read", "update", "delete", "update:own", "delete:own"},
}

// RoleStatements is the default grant table. ADMIN is a superset of USER.
var RoleStatements = map[models.Role]Statements{
	models.RoleUser: {
		"account": {"update", "change-password"},
		"posts":   {"create", "read", "update:own", "delete:own"},
	},
	models.RoleAdmin: {
		"user":    {"create", "list", "set-role", "ban", "impersonate", "delete", "set-password", "get", "update"},
		"session": {"list", "revoke", "delete"},
		"account": {"update", "change-password"},
		"posts":   {"create", "read", "update", "delete", "update:own", "delete:own"},
	},
}

// Permission requests used by the guard and the actions.
var (
	PermListUsers      = Request{"user": {"list"}}
	PermSetRole        = Request{"user": {"set-role"}}
	PermDeleteUser     = Request{"user": {"delete"}}
	PermChangePassword = Request{"account": {"change-password"}}
	PermUpdateAccount  = Request{"account": {"update"}}
	PermFullPostAccess = Request{"posts": {"update", "delete"}}
)

// DefaultPolicy builds the policy from Universe and RoleStatements.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(Universe, RoleStatements)
	if err != nil {
		panic(err)
	}
	return p
}
