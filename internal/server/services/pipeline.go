package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Op identifies the operation a pipeline run belongs to.
type Op string

const (
	OpSignUpEmail     Op = "sign-up-email"
	OpMagicLinkSignUp Op = "magic-link-sign-up"
	OpOAuthSignUp     Op = "oauth-sign-up"
	OpUpdateUser      Op = "update-user"
	// OpCreateUser runs for every user row about to be inserted, after the
	// operation-specific steps.
	OpCreateUser Op = "create-user"
)

// Draft is the mutable user data a pipeline step may inspect and rewrite
// before it reaches the store.
type Draft struct {
	Name  string
	Email string
	Role  models.Role
}

type StepFunc func(ctx context.Context, d *Draft) error

type Step struct {
	Name string
	Run  StepFunc
}

// Pipeline runs named steps per operation in registration order. The
// first failing step aborts the run.
type Pipeline struct {
	steps map[Op][]Step
}

func NewPipeline() *Pipeline {
	return &Pipeline{steps: map[Op][]Step{}}
}

// Register appends a step to each of ops.
func (p *Pipeline) Register(name string, run StepFunc, ops ...Op) *Pipeline {
	for _, op := range ops {
		p.steps[op] = append(p.steps[op], Step{Name: name, Run: run})
	}
	return p
}

// Steps lists step names for op in execution order.
func (p *Pipeline) Steps(op Op) []string {
	names := make([]string, 0, len(p.steps[op]))
	for _, s := range p.steps[op] {
		names = append(names, s.Name)
	}
	return names
}

func (p *Pipeline) Run(ctx context.Context, op Op, d *Draft) error {
	for _, s := range p.steps[op] {
		if err := s.Run(ctx, d); err != nil {
			if _, ok := common.AsAPIError(err); ok {
				return err
			}
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

// DefaultPipeline wires the standard steps: the sign-up domain allow-list,
// display-name normalisation, and server-side role assignment.
func DefaultPipeline(allowedDomains, adminEmails []string) *Pipeline {
	return NewPipeline().
		Register("validate-email-domain", ValidateEmailDomain(allowedDomains), OpSignUpEmail).
		Register("normalise-name", normaliseNameStep, OpSignUpEmail, OpUpdateUser).
		Register("assign-admin-role", AssignAdminRole(adminEmails), OpCreateUser)
}

// ValidateEmailDomain rejects e-mails whose domain is not in allowed.
func ValidateEmailDomain(allowed []string) StepFunc {
	set := make([]string, 0, len(allowed))
	for _, d := range allowed {
		set = append(set, strings.ToLower(d))
	}
	return func(ctx context.Context, d *Draft) error {
		if !slices.Contains(set, EmailDomain(d.Email)) {
			return common.ErrInvalidDomain
		}
		return nil
	}
}

func normaliseNameStep(ctx context.Context, d *Draft) error {
	d.Name = NormaliseName(d.Name)
	return nil
}

// AssignAdminRole sets the draft role from the admin allow-list, ignoring
// whatever role the draft carried.
func AssignAdminRole(adminEmails []string) StepFunc {
	return func(ctx context.Context, d *Draft) error {
		d.Role = models.RoleUser
		for _, e := range adminEmails {
			if strings.EqualFold(strings.TrimSpace(e), d.Email) {
				d.Role = models.RoleAdmin
				break
			}
		}
		return nil
	}
}
