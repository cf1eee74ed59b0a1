// Package policy applies the policies bound to permissions and narrows a
// principal's raw permission set down to the effective one. Policy
// expressions are opaque here; an external PredicateRunner decides whether a
// policy matches a request context.
package policy

import (
	"context"
	"sort"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/gatehouse-io/gatehouse/pkg/rbac"
	"github.com/gatehouse-io/gatehouse/pkg/store"
)

// Context carries the attributes of the request being authorized (source ip,
// time of day, whatever the predicate runner understands).
type Context map[string]any

// PredicateRunner evaluates a policy expression against a request context.
// Implementations live outside the core; an error means the expression could
// not be evaluated, not that it evaluated false.
type PredicateRunner interface {
	Evaluate(ctx context.Context, pol *iam.Policy, reqCtx Context) (bool, error)
}

// RunnerFunc adapts a function to the PredicateRunner interface.
type RunnerFunc func(ctx context.Context, pol *iam.Policy, reqCtx Context) (bool, error)

// Evaluate implements PredicateRunner.
func (f RunnerFunc) Evaluate(ctx context.Context, pol *iam.Policy, reqCtx Context) (bool, error) {
	return f(ctx, pol, reqCtx)
}

// DenyAllRunner matches no policy. With it, any bound policy fails closed, so
// it is a safe default for deployments that have not plugged in a runner.
func DenyAllRunner() PredicateRunner {
	return RunnerFunc(func(context.Context, *iam.Policy, Context) (bool, error) {
		return false, nil
	})
}

// Warning records a predicate-runner failure surfaced alongside a reduced
// result set. The affected permission is denied, not the whole call.
type Warning struct {
	PolicyID   string `json:"policy_id"`
	Permission string `json:"permission"`
	Err        error  `json:"-"`
	Message    string `json:"message"`
}

// Evaluator filters raw permission sets through bound policies with
// deny-overrides-allow conflict resolution.
type Evaluator struct {
	store  store.Store
	graph  *rbac.Graph
	runner PredicateRunner
}

// NewEvaluator creates an evaluator. A nil runner defaults to DenyAllRunner.
func NewEvaluator(st store.Store, graph *rbac.Graph, runner PredicateRunner) *Evaluator {
	if runner == nil {
		runner = DenyAllRunner()
	}
	return &Evaluator{store: st, graph: graph, runner: runner}
}

// CreatePolicy creates a policy in a realm.
func (e *Evaluator) CreatePolicy(ctx context.Context, realmID string, typ iam.PolicyType, expression, description string) (*iam.Policy, error) {
	if realmID == "" {
		return nil, iam.Validationf("realm id is required")
	}
	if !typ.Valid() {
		return nil, iam.Validationf("unknown policy type %q", typ)
	}
	if expression == "" {
		return nil, iam.Validationf("policy expression is required")
	}
	if _, err := e.store.GetRealm(ctx, realmID); err != nil {
		return nil, err
	}
	pol := &iam.Policy{RealmID: realmID, Type: typ, Expression: expression, Description: description}
	if err := e.store.CreatePolicy(ctx, pol); err != nil {
		return nil, err
	}
	return pol, nil
}

// GetPolicy retrieves a policy by id.
func (e *Evaluator) GetPolicy(ctx context.Context, id string) (*iam.Policy, error) {
	return e.store.GetPolicy(ctx, id)
}

// ListPolicies lists policies in a realm with pagination.
func (e *Evaluator) ListPolicies(ctx context.Context, realmID string, offset, limit int) ([]*iam.Policy, error) {
	return e.store.ListPolicies(ctx, realmID, offset, limit)
}

// ListPoliciesByType lists policies of one kind in a realm.
func (e *Evaluator) ListPoliciesByType(ctx context.Context, realmID string, typ iam.PolicyType) ([]*iam.Policy, error) {
	if !typ.Valid() {
		return nil, iam.Validationf("unknown policy type %q", typ)
	}
	return e.store.ListPoliciesByType(ctx, realmID, typ)
}

// UpdatePolicy updates a policy's mutable fields.
func (e *Evaluator) UpdatePolicy(ctx context.Context, pol *iam.Policy) error {
	if pol.ID == "" {
		return iam.Validationf("policy id is required")
	}
	if !pol.Type.Valid() {
		return iam.Validationf("unknown policy type %q", pol.Type)
	}
	return e.store.UpdatePolicy(ctx, pol)
}

// DeletePolicy deletes a policy; its permission bindings cascade.
func (e *Evaluator) DeletePolicy(ctx context.Context, id string) error {
	return e.store.DeletePolicy(ctx, id)
}

// Bind attaches a policy to a permission. Both must exist and share a realm;
// binding an already-bound pair is a no-op.
func (e *Evaluator) Bind(ctx context.Context, permissionID, policyID string) error {
	perm, err := e.store.GetPermission(ctx, permissionID)
	if err != nil {
		return err
	}
	pol, err := e.store.GetPolicy(ctx, policyID)
	if err != nil {
		return err
	}
	if perm.RealmID != pol.RealmID {
		return iam.Validationf("permission %s and policy %s belong to different realms", permissionID, policyID)
	}
	return e.store.BindPermissionPolicy(ctx, permissionID, policyID)
}

// Unbind detaches a policy from a permission. No-op when absent.
func (e *Evaluator) Unbind(ctx context.Context, permissionID, policyID string) error {
	return e.store.UnbindPermissionPolicy(ctx, permissionID, policyID)
}

// PoliciesFor returns the policies bound to a permission.
func (e *Evaluator) PoliciesFor(ctx context.Context, permissionID string) ([]*iam.Policy, error) {
	policyIDs, err := e.store.PermissionPolicyIDs(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	policies := make([]*iam.Policy, 0, len(policyIDs))
	for _, id := range policyIDs {
		pol, err := e.store.GetPolicy(ctx, id)
		if err != nil {
			return nil, err
		}
		policies = append(policies, pol)
	}
	return policies, nil
}

// EffectivePermissions computes the "resource:action" identifiers actually
// granted to the user for the given request context.
//
// For each permission in the user's raw set: with no bound policies the
// permission is granted as-is. With bound policies, any matching DENY removes
// it regardless of matching ALLOWs, and an ATTRIBUTE policy that evaluates
// false removes it the same way. An ALLOW that does not match has no effect;
// the layer only ever narrows what the roles already granted. Predicate
// failures deny the affected permission and are reported as warnings rather
// than failing the call.
func (e *Evaluator) EffectivePermissions(ctx context.Context, userID string, reqCtx Context) ([]string, []Warning, error) {
	raw, err := e.graph.RawPermissions(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	var (
		granted  []string
		warnings []Warning
	)
	for _, perm := range raw {
		ok, warns, err := e.permitted(ctx, perm, reqCtx)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, warns...)
		if ok {
			granted = append(granted, perm.Identifier())
		}
	}
	sort.Strings(granted)
	return granted, warnings, nil
}

// permitted decides a single permission. Returned errors are store failures;
// predicate failures come back as warnings with ok=false.
func (e *Evaluator) permitted(ctx context.Context, perm *iam.Permission, reqCtx Context) (bool, []Warning, error) {
	policies, err := e.PoliciesFor(ctx, perm.ID)
	if err != nil {
		return false, nil, err
	}
	if len(policies) == 0 {
		return true, nil, nil
	}

	var warnings []Warning
	allowed := true
	for _, pol := range policies {
		matched, err := e.runner.Evaluate(ctx, pol, reqCtx)
		if err != nil {
			warnings = append(warnings, Warning{
				PolicyID:   pol.ID,
				Permission: perm.Identifier(),
				Err:        err,
				Message:    err.Error(),
			})
			allowed = false
			continue
		}
		switch pol.Type {
		case iam.PolicyDeny:
			if matched {
				allowed = false
			}
		case iam.PolicyAttribute:
			if !matched {
				allowed = false
			}
		case iam.PolicyAllow:
			// A non-matching ALLOW does not revoke the grant the role
			// already made; a matching one changes nothing either.
		}
	}
	return allowed, warnings, nil
}
