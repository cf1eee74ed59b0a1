// Package core composes the realm guard, role graph, policy evaluator, and
// token ledger into the authorization service callers embed or expose.
package core

import (
	"context"
	"time"

	"github.com/gatehouse-io/gatehouse/pkg/audit"
	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/policy"
	"github.com/gatehouse-io/gatehouse/pkg/rbac"
	"github.com/gatehouse-io/gatehouse/pkg/realm"
	"github.com/gatehouse-io/gatehouse/pkg/store"
	"github.com/gatehouse-io/gatehouse/pkg/token"
)

// Service is the facade over the authorization core. All methods route
// through the same store, so a mutation committed by one method is visible to
// the next call on any other.
type Service struct {
	store     store.Store
	realms    *realm.Guard
	graph     *rbac.Graph
	evaluator *policy.Evaluator
	ledger    *token.Ledger
	hasher    iam.PasswordHasher
	sink      audit.Sink
	metrics   *observability.Metrics
}

// Options configures optional service collaborators.
type Options struct {
	// Runner evaluates policy expressions. Nil fails closed on any bound
	// policy.
	Runner policy.PredicateRunner

	// Clock drives token expiry. Nil uses the system clock.
	Clock token.Clock

	// RevocationCache is the optional redis denylist fast path.
	RevocationCache *token.RevocationCache

	// Hasher hashes user passwords. Nil uses bcrypt.
	Hasher iam.PasswordHasher

	// Sink receives audit events. Nil drops them.
	Sink audit.Sink

	// Metrics receives token and resolution counters. Nil disables them.
	Metrics *observability.Metrics
}

// New wires a service over the given store.
func New(st store.Store, opts Options) *Service {
	if opts.Hasher == nil {
		opts.Hasher = iam.BcryptHasher{}
	}
	guard := realm.NewGuard(st)
	graph := rbac.NewGraph(st)
	return &Service{
		store:     st,
		realms:    guard,
		graph:     graph,
		evaluator: policy.NewEvaluator(st, graph, opts.Runner),
		ledger:    token.NewLedger(st, guard, opts.Clock, opts.RevocationCache),
		hasher:    opts.Hasher,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
	}
}

// Realms exposes realm lifecycle operations.
func (s *Service) Realms() *realm.Guard { return s.realms }

// Graph exposes role and permission management.
func (s *Service) Graph() *rbac.Graph { return s.graph }

// Policies exposes policy management and evaluation.
func (s *Service) Policies() *policy.Evaluator { return s.evaluator }

// Tokens exposes the token ledger.
func (s *Service) Tokens() *token.Ledger { return s.ledger }

// CreateUser creates a user in an active realm, hashing the password before
// it reaches the store.
func (s *Service) CreateUser(ctx context.Context, realmID, username, email, password string) (*iam.User, error) {
	if username == "" {
		return nil, iam.Validationf("username is required")
	}
	if email == "" {
		return nil, iam.Validationf("email is required")
	}
	if err := s.realms.RequireActive(ctx, realmID); err != nil {
		return nil, err
	}

	user := &iam.User{RealmID: realmID, Username: username, Email: email, Enabled: true}
	if password != "" {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventUserCreate, audit.StatusSuccess, &audit.Event{RealmID: realmID, UserID: user.ID})
	return user, nil
}

// GetUser retrieves a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*iam.User, error) {
	return s.store.GetUser(ctx, id)
}

// GetUserByUsername retrieves a user by realm-scoped username.
func (s *Service) GetUserByUsername(ctx context.Context, realmID, username string) (*iam.User, error) {
	return s.store.GetUserByUsername(ctx, realmID, username)
}

// ListUsers lists users in a realm with pagination.
func (s *Service) ListUsers(ctx context.Context, realmID string, offset, limit int) ([]*iam.User, error) {
	return s.store.ListUsers(ctx, realmID, offset, limit)
}

// UpdateUser updates a user's profile fields. The password hash is managed
// through ChangePassword, not here.
func (s *Service) UpdateUser(ctx context.Context, user *iam.User) error {
	if user.ID == "" {
		return iam.Validationf("user id is required")
	}
	if user.Username == "" {
		return iam.Validationf("username is required")
	}
	return s.store.UpdateUser(ctx, user)
}

// SetUserEnabled enables or disables a user. Disabling revokes all of the
// user's tokens so the change takes effect on the next validation.
func (s *Service) SetUserEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.store.SetUserEnabled(ctx, id, enabled); err != nil {
		return err
	}
	typ := audit.EventUserEnable
	if !enabled {
		typ = audit.EventUserDisable
		if _, err := s.ledger.RevokeAllForUser(ctx, id); err != nil {
			return err
		}
	}
	s.emit(ctx, typ, audit.StatusSuccess, &audit.Event{UserID: id})
	return nil
}

// DeleteUser deletes a user after revoking the user's tokens.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.ledger.RevokeAllForUser(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, audit.EventUserDelete, audit.StatusSuccess, &audit.Event{UserID: id})
	return nil
}

// Authenticate verifies a realm-scoped username/password pair and returns the
// user. The realm must be active and the user enabled.
func (s *Service) Authenticate(ctx context.Context, realmID, username, password string) (*iam.User, error) {
	if err := s.realms.RequireActive(ctx, realmID); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByUsername(ctx, realmID, username)
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, iam.ErrUserDisabled
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		s.emit(ctx, audit.EventAccessDenied, audit.StatusDenied, &audit.Event{RealmID: realmID, UserID: user.ID, Message: "password mismatch"})
		return nil, iam.Validationf("invalid credentials")
	}
	return user, nil
}

// ChangePassword replaces a user's password hash and revokes every token the
// user holds, forcing re-authentication.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	if newPassword == "" {
		return iam.Validationf("password is required")
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}
	if _, err := s.ledger.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	s.emit(ctx, audit.EventPasswordChange, audit.StatusSuccess, &audit.Event{RealmID: user.RealmID, UserID: userID})
	return nil
}

// ResolvePermissions computes the effective "resource:action" set for a
// principal in a realm. The realm must be active, the user must exist in it,
// and a disabled user resolves to an error rather than an empty set so
// callers cannot mistake a gate for an absence of grants.
func (s *Service) ResolvePermissions(ctx context.Context, realmID, userID string, reqCtx policy.Context) ([]string, []policy.Warning, error) {
	if err := s.realms.RequireActive(ctx, realmID); err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user.RealmID != realmID {
		return nil, nil, iam.NewNotFound("user", userID)
	}
	if !user.Enabled {
		return nil, nil, iam.ErrUserDisabled
	}

	start := time.Now()
	perms, warnings, err := s.evaluator.EffectivePermissions(ctx, userID, reqCtx)
	if s.metrics != nil {
		s.metrics.PermissionResolutionDuration.Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.PermissionResolutionsTotal.WithLabelValues(realmID, status).Inc()
		s.metrics.PolicyEvaluationErrorsTotal.Add(float64(len(warnings)))
	}
	if err != nil {
		return nil, nil, err
	}
	s.emit(ctx, audit.EventPermissionResolve, audit.StatusSuccess, &audit.Event{
		RealmID: realmID,
		UserID:  userID,
		Details: map[string]any{"granted": len(perms), "warnings": len(warnings)},
	})
	return perms, warnings, nil
}

// CheckPermission reports whether a single "resource:action" identifier is in
// the principal's effective set.
func (s *Service) CheckPermission(ctx context.Context, realmID, userID, identifier string, reqCtx policy.Context) (bool, error) {
	perms, _, err := s.ResolvePermissions(ctx, realmID, userID, reqCtx)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == identifier {
			return true, nil
		}
	}
	s.emit(ctx, audit.EventAccessDenied, audit.StatusDenied, &audit.Event{RealmID: realmID, UserID: userID, Resource: identifier})
	return false, nil
}

// IssueToken issues a credential for the user.
func (s *Service) IssueToken(ctx context.Context, realmID, userID, clientID string, typ iam.TokenType, ttl time.Duration) (*iam.Token, error) {
	tok, err := s.ledger.Issue(ctx, realmID, userID, clientID, typ, ttl)
	if err != nil {
		s.emit(ctx, audit.EventTokenIssue, audit.StatusFailure, &audit.Event{RealmID: realmID, UserID: userID, Message: err.Error()})
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TokensIssuedTotal.WithLabelValues(realmID, string(typ)).Inc()
	}
	s.emit(ctx, audit.EventTokenIssue, audit.StatusSuccess, &audit.Event{RealmID: realmID, UserID: userID, TokenID: tok.ID})
	return tok, nil
}

// ValidateToken checks a token is live and returns it. The caller takes the
// token's user id to ResolvePermissions for each authorization decision.
func (s *Service) ValidateToken(ctx context.Context, tokenID string) (*iam.Token, error) {
	tok, err := s.ledger.Validate(ctx, tokenID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.TokenValidationsTotal.WithLabelValues("invalid").Inc()
		}
		s.emit(ctx, audit.EventTokenValidateFail, audit.StatusFailure, &audit.Event{TokenID: tokenID, Message: err.Error()})
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TokenValidationsTotal.WithLabelValues("valid").Inc()
	}
	return tok, nil
}

// RevokeToken permanently revokes a token.
func (s *Service) RevokeToken(ctx context.Context, tokenID string) error {
	if err := s.ledger.Revoke(ctx, tokenID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.TokensRevokedTotal.Inc()
	}
	s.emit(ctx, audit.EventTokenRevoke, audit.StatusSuccess, &audit.Event{TokenID: tokenID})
	return nil
}

// RevokeAllTokens revokes every token the user holds.
func (s *Service) RevokeAllTokens(ctx context.Context, userID string) (int, error) {
	n, err := s.ledger.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.TokensRevokedTotal.Add(float64(n))
	}
	s.emit(ctx, audit.EventTokenRevokeAll, audit.StatusSuccess, &audit.Event{UserID: userID, Details: map[string]any{"revoked": n}})
	return n, nil
}

func (s *Service) emit(ctx context.Context, typ audit.EventType, status audit.EventStatus, event *audit.Event) {
	event.Type = typ
	event.Status = status
	audit.Emit(ctx, s.sink, event)
}
