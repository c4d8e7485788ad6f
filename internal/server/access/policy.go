// Package access holds the role → permission table and its evaluation.
//
// A permission is a (resource, action) pair. A role grants a set of
// actions per resource; a request is granted only when every pair it names
// is granted. Unknown roles and unknown resources grant nothing.
package access

import (
	"fmt"
	"sort"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Statements maps a resource name to a list of action tokens, e.g.
// {"posts": {"update:own", "delete:own"}}.
type Statements map[string][]string

// Request is the set of permissions an operation needs.
type Request = Statements

type actionSet map[string]struct{}

// Policy is an immutable role table. It is safe for concurrent use.
type Policy struct {
	roles map[models.Role]map[string]actionSet
}

// NewPolicy builds a policy from a universe of known statements and the
// per-role grants. A role granting a resource or action missing from the
// universe is a configuration error.
func NewPolicy(universe Statements, roles map[models.Role]Statements) (*Policy, error) {
	known := toSets(universe)

	p := &Policy{roles: make(map[models.Role]map[string]actionSet, len(roles))}
	for role, stmts := range roles {
		for resource, actions := range stmts {
			allowed, ok := known[resource]
			if !ok {
				return nil, fmt.Errorf("role %s: unknown resource %q", role, resource)
			}
			for _, a := range actions {
				if _, ok := allowed[a]; !ok {
					return nil, fmt.Errorf("role %s: unknown action %q on %q", role, a, resource)
				}
			}
		}
		p.roles[role] = toSets(stmts)
	}
	return p, nil
}

// HasPermission reports whether role is granted every (resource, action)
// pair in req. Order and duplicates in req do not matter.
func (p *Policy) HasPermission(role models.Role, req Request) bool {
	if p == nil {
		return false
	}
	grants, ok := p.roles[role]
	if !ok {
		return false
	}
	for resource, actions := range req {
		allowed := grants[resource]
		for _, a := range actions {
			if _, ok := allowed[a]; !ok {
				return false
			}
		}
	}
	return true
}

// Grants returns a sorted copy of the statements granted to role.
func (p *Policy) Grants(role models.Role) Statements {
	out := Statements{}
	if p == nil {
		return out
	}
	for resource, actions := range p.roles[role] {
		list := make([]string, 0, len(actions))
		for a := range actions {
			list = append(list, a)
		}
		sort.Strings(list)
		out[resource] = list
	}
	return out
}

func toSets(s Statements) map[string]actionSet {
	out := make(map[string]actionSet, len(s))
	for resource, actions := range s {
		set := make(actionSet, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		out[resource] = set
	}
	return out
}
