// Package memory implements the store gateway with mutex-guarded in-process
// maps. It is the backend used by tests and embedded deployments; semantics
// match the postgres backend, including idempotent link inserts and distinct
// NotFound/Conflict errors.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

// Store keeps all entities in memory. A single RWMutex guards every map;
// operations are short and never block on I/O, so finer-grained locking has
// not been worth the complexity.
type Store struct {
	mu sync.RWMutex

	realms      map[string]*iam.Realm
	users       map[string]*iam.User
	roles       map[string]*iam.Role
	permissions map[string]*iam.Permission
	policies    map[string]*iam.Policy
	tokens      map[string]*iam.Token

	userRoles    map[string]map[string]time.Time // userID -> roleID -> linked at
	rolePerms    map[string]map[string]time.Time // roleID -> permissionID -> linked at
	permPolicies map[string]map[string]time.Time // permissionID -> policyID -> linked at
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		realms:       make(map[string]*iam.Realm),
		users:        make(map[string]*iam.User),
		roles:        make(map[string]*iam.Role),
		permissions:  make(map[string]*iam.Permission),
		policies:     make(map[string]*iam.Policy),
		tokens:       make(map[string]*iam.Token),
		userRoles:    make(map[string]map[string]time.Time),
		rolePerms:    make(map[string]map[string]time.Time),
		permPolicies: make(map[string]map[string]time.Time),
	}
}

// Ping always succeeds for the in-memory backend.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error { return nil }

// --- realms ---

func (s *Store) CreateRealm(ctx context.Context, realm *iam.Realm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.realms {
		if r.Name == realm.Name {
			return iam.Conflictf("realm name %q already exists", realm.Name)
		}
	}
	realm.ID = uuid.NewString()
	realm.CreatedAt = time.Now().UTC()
	s.realms[realm.ID] = cloneRealm(realm)
	return nil
}

func (s *Store) GetRealm(ctx context.Context, id string) (*iam.Realm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.realms[id]
	if !ok {
		return nil, iam.NewNotFound("realm", id)
	}
	return cloneRealm(r), nil
}

func (s *Store) GetRealmByName(ctx context.Context, name string) (*iam.Realm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.realms {
		if r.Name == name {
			return cloneRealm(r), nil
		}
	}
	return nil, iam.NewNotFound("realm", name)
}

func (s *Store) ListRealms(ctx context.Context, offset, limit int) ([]*iam.Realm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*iam.Realm, 0, len(s.realms))
	for _, r := range s.realms {
		all = append(all, cloneRealm(r))
	}
	sort.Slice(all, func(i, j int) bool { return orderedBefore(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	return paginate(all, offset, limit), nil
}

func (s *Store) UpdateRealm(ctx context.Context, realm *iam.Realm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.realms[realm.ID]
	if !ok {
		return iam.NewNotFound("realm", realm.ID)
	}
	for id, r := range s.realms {
		if id != realm.ID && r.Name == realm.Name {
			return iam.Conflictf("realm name %q already exists", realm.Name)
		}
	}
	realm.CreatedAt = existing.CreatedAt
	s.realms[realm.ID] = cloneRealm(realm)
	return nil
}

func (s *Store) SetRealmEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.realms[id]
	if !ok {
		return iam.NewNotFound("realm", id)
	}
	r.Enabled = enabled
	return nil
}

func (s *Store) DeleteRealm(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.realms[id]; !ok {
		return iam.NewNotFound("realm", id)
	}
	delete(s.realms, id)
	return nil
}

func (s *Store) RealmCounts(ctx context.Context, realmID string) (iam.RealmCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.realms[realmID]; !ok {
		return iam.RealmCounts{}, iam.NewNotFound("realm", realmID)
	}
	var c iam.RealmCounts
	for _, u := range s.users {
		if u.RealmID == realmID {
			c.Users++
		}
	}
	for _, r := range s.roles {
		if r.RealmID == realmID {
			c.Roles++
		}
	}
	for _, p := range s.permissions {
		if p.RealmID == realmID {
			c.Permissions++
		}
	}
	for _, p := range s.policies {
		if p.RealmID == realmID {
			c.Policies++
		}
	}
	for _, t := range s.tokens {
		if t.RealmID == realmID {
			c.Tokens++
		}
	}
	return c, nil
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, user *iam.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.RealmID != user.RealmID {
			continue
		}
		if u.Username == user.Username {
			return iam.Conflictf("username %q already exists in realm", user.Username)
		}
		if u.Email == user.Email {
			return iam.Conflictf("email %q already exists in realm", user.Email)
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*iam.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, iam.NewNotFound("user", id)
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, realmID, username string) (*iam.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.RealmID == realmID && u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, iam.NewNotFound("user", username)
}

func (s *Store) GetUserByEmail(ctx context.Context, realmID, email string) (*iam.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.RealmID == realmID && u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, iam.NewNotFound("user", email)
}

func (s *Store) ListUsers(ctx context.Context, realmID string, offset, limit int) ([]*iam.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*iam.User
	for _, u := range s.users {
		if u.RealmID == realmID {
			all = append(all, cloneUser(u))
		}
	}
	sort.Slice(all, func(i, j int) bool { return orderedBefore(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	return paginate(all, offset, limit), nil
}

func (s *Store) UpdateUser(ctx context.Context, user *iam.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return iam.NewNotFound("user", user.ID)
	}
	for id, u := range s.users {
		if id == user.ID || u.RealmID != existing.RealmID {
			continue
		}
		if u.Username == user.Username {
			return iam.Conflictf("username %q already exists in realm", user.Username)
		}
		if u.Email == user.Email {
			return iam.Conflictf("email %q already exists in realm", user.Email)
		}
	}
	user.RealmID = existing.RealmID
	user.CreatedAt = existing.CreatedAt
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) SetUserEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return iam.NewNotFound("user", id)
	}
	u.Enabled = enabled
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return iam.NewNotFound("user", id)
	}
	delete(s.users, id)
	delete(s.userRoles, id)
	for tokID, tok := range s.tokens {
		if tok.UserID == id {
			delete(s.tokens, tokID)
		}
	}
	return nil
}

// --- roles ---

func (s *Store) CreateRole(ctx context.Context, role *iam.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.roles {
		if r.RealmID == role.RealmID && r.Name == role.Name {
			return iam.Conflictf("role name %q already exists in realm", role.Name)
		}
	}
	role.ID = uuid.NewString()
	role.CreatedAt = time.Now().UTC()
	s.roles[role.ID] = cloneRole(role)
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*iam.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, iam.NewNotFound("role", id)
	}
	return cloneRole(r), nil
}

func (s *Store) GetRoleByName(ctx context.Context, realmID, name string) (*iam.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.roles {
		if r.RealmID == realmID && r.Name == name {
			return cloneRole(r), nil
		}
	}
	return nil, iam.NewNotFound("role", name)
}

func (s *Store) ListRoles(ctx context.Context, realmID string, offset, limit int) ([]*iam.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*iam.Role
	for _, r := range s.roles {
		if r.RealmID == realmID {
			all = append(all, cloneRole(r))
		}
	}
	sort.Slice(all, func(i, j int) bool { return orderedBefore(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	return paginate(all, offset, limit), nil
}

func (s *Store) UpdateRole(ctx context.Context, role *iam.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.roles[role.ID]
	if !ok {
		return iam.NewNotFound("role", role.ID)
	}
	for id, r := range s.roles {
		if id != role.ID && r.RealmID == existing.RealmID && r.Name == role.Name {
			return iam.Conflictf("role name %q already exists in realm", role.Name)
		}
	}
	role.RealmID = existing.RealmID
	role.CreatedAt = existing.CreatedAt
	s.roles[role.ID] = cloneRole(role)
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[id]; !ok {
		return iam.NewNotFound("role", id)
	}
	delete(s.roles, id)
	delete(s.rolePerms, id)
	for _, roleSet := range s.userRoles {
		delete(roleSet, id)
	}
	return nil
}

// --- permissions ---

func (s *Store) CreatePermission(ctx context.Context, perm *iam.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.permissions {
		if p.RealmID == perm.RealmID && p.Resource == perm.Resource && p.Action == perm.Action {
			return iam.Conflictf("permission %q already exists in realm", perm.Identifier())
		}
	}
	perm.ID = uuid.NewString()
	perm.CreatedAt = time.Now().UTC()
	s.permissions[perm.ID] = clonePermission(perm)
	return nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (*iam.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.permissions[id]
	if !ok {
		return nil, iam.NewNotFound("permission", id)
	}
	return clonePermission(p), nil
}

func (s *Store) GetPermissionByKey(ctx context.Context, realmID, resource, action string) (*iam.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.permissions {
		if p.RealmID == realmID && p.Resource == resource && p.Action == action {
			return clonePermission(p), nil
		}
	}
	return nil, iam.NewNotFound("permission", resource+":"+action)
}

func (s *Store) ListPermissions(ctx context.Context, realmID string, offset, limit int) ([]*iam.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*iam.Permission
	for _, p := range s.permissions {
		if p.RealmID == realmID {
			all = append(all, clonePermission(p))
		}
	}
	sort.Slice(all, func(i, j int) bool { return orderedBefore(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	return paginate(all, offset, limit), nil
}

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.permissions[id]; !ok {
		return iam.NewNotFound("permission", id)
	}
	delete(s.permissions, id)
	delete(s.permPolicies, id)
	for _, permSet := range s.rolePerms {
		delete(permSet, id)
	}
	return nil
}

// --- policies ---

func (s *Store) CreatePolicy(ctx context.Context, policy *iam.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy.ID = uuid.NewString()
	policy.CreatedAt = time.Now().UTC()
	s.policies[policy.ID] = clonePolicy(policy)
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id string) (*iam.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, iam.NewNotFound("policy", id)
	}
	return clonePolicy(p), nil
}

func (s *Store) ListPolicies(ctx context.Context, realmID string, offset, limit int) ([]*iam.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*iam.Policy
	for _, p := range s.policies {
		if p.RealmID == realmID {
			all = append(all, clonePolicy(p))
		}
	}
	sort.Slice(all, func(i, j int) bool { return orderedBefore(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	return paginate(all, offset, limit), nil
}

func (s *Store) ListPoliciesByType(ctx context.Context, realmID string, typ iam.PolicyType) ([]*iam.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*iam.Policy
	for _, p := range s.policies {
		if p.RealmID == realmID && p.Type == typ {
			all = append(all, clonePolicy(p))
		}
	}
	sort.Slice(all, func(i, j int) bool { return orderedBefore(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	return all, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, policy *iam.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[policy.ID]
	if !ok {
		return iam.NewNotFound("policy", policy.ID)
	}
	policy.RealmID = existing.RealmID
	policy.CreatedAt = existing.CreatedAt
	s.policies[policy.ID] = clonePolicy(policy)
	return nil
}

func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return iam.NewNotFound("policy", id)
	}
	delete(s.policies, id)
	for _, policySet := range s.permPolicies {
		delete(policySet, id)
	}
	return nil
}

// --- links ---

func (s *Store) AddUserRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return iam.NewNotFound("user", userID)
	}
	if _, ok := s.roles[roleID]; !ok {
		return iam.NewNotFound("role", roleID)
	}
	set := s.userRoles[userID]
	if set == nil {
		set = make(map[string]time.Time)
		s.userRoles[userID] = set
	}
	if _, exists := set[roleID]; !exists {
		set[roleID] = time.Now().UTC()
	}
	return nil
}

func (s *Store) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.userRoles[userID], roleID)
	return nil
}

func (s *Store) UserRoleIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, iam.NewNotFound("user", userID)
	}
	return setKeys(s.userRoles[userID]), nil
}

func (s *Store) AddRolePermission(ctx context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[roleID]; !ok {
		return iam.NewNotFound("role", roleID)
	}
	if _, ok := s.permissions[permissionID]; !ok {
		return iam.NewNotFound("permission", permissionID)
	}
	set := s.rolePerms[roleID]
	if set == nil {
		set = make(map[string]time.Time)
		s.rolePerms[roleID] = set
	}
	if _, exists := set[permissionID]; !exists {
		set[permissionID] = time.Now().UTC()
	}
	return nil
}

func (s *Store) RemoveRolePermission(ctx context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rolePerms[roleID], permissionID)
	return nil
}

func (s *Store) RolePermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.roles[roleID]; !ok {
		return nil, iam.NewNotFound("role", roleID)
	}
	return setKeys(s.rolePerms[roleID]), nil
}

func (s *Store) BindPermissionPolicy(ctx context.Context, permissionID, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.permissions[permissionID]; !ok {
		return iam.NewNotFound("permission", permissionID)
	}
	if _, ok := s.policies[policyID]; !ok {
		return iam.NewNotFound("policy", policyID)
	}
	set := s.permPolicies[permissionID]
	if set == nil {
		set = make(map[string]time.Time)
		s.permPolicies[permissionID] = set
	}
	if _, exists := set[policyID]; !exists {
		set[policyID] = time.Now().UTC()
	}
	return nil
}

func (s *Store) UnbindPermissionPolicy(ctx context.Context, permissionID, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.permPolicies[permissionID], policyID)
	return nil
}

func (s *Store) PermissionPolicyIDs(ctx context.Context, permissionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.permissions[permissionID]; !ok {
		return nil, iam.NewNotFound("permission", permissionID)
	}
	return setKeys(s.permPolicies[permissionID]), nil
}

// --- tokens ---

func (s *Store) CreateToken(ctx context.Context, token *iam.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token.ID = uuid.NewString()
	token.CreatedAt = time.Now().UTC()
	s.tokens[token.ID] = cloneToken(token)
	return nil
}

func (s *Store) GetToken(ctx context.Context, id string) (*iam.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, iam.NewNotFound("token", id)
	}
	return cloneToken(t), nil
}

func (s *Store) ListTokensByUser(ctx context.Context, userID string, typ iam.TokenType) ([]*iam.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*iam.Token
	for _, t := range s.tokens {
		if t.UserID == userID && (typ == "" || t.TokenType == typ) {
			all = append(all, cloneToken(t))
		}
	}
	sort.Slice(all, func(i, j int) bool { return orderedBefore(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	return all, nil
}

func (s *Store) RevokeToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tokens[id]; ok {
		t.Revoked = true
	}
	return nil
}

func (s *Store) RevokeTokensForUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, t := range s.tokens {
		if !t.ExpiresAt.After(before) {
			delete(s.tokens, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) CountTokensByRealm(ctx context.Context, realmID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, t := range s.tokens {
		if t.RealmID == realmID {
			count++
		}
	}
	return count, nil
}

// --- helpers ---

func cloneRealm(r *iam.Realm) *iam.Realm {
	c := *r
	return &c
}

func cloneUser(u *iam.User) *iam.User {
	c := *u
	if u.Attributes != nil {
		c.Attributes = make(map[string]string, len(u.Attributes))
		for k, v := range u.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

func cloneRole(r *iam.Role) *iam.Role {
	c := *r
	return &c
}

func clonePermission(p *iam.Permission) *iam.Permission {
	c := *p
	return &c
}

func clonePolicy(p *iam.Policy) *iam.Policy {
	c := *p
	return &c
}

func cloneToken(t *iam.Token) *iam.Token {
	c := *t
	return &c
}

func setKeys(set map[string]time.Time) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orderedBefore(ti time.Time, idI string, tj time.Time, idJ string) bool {
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return idI < idJ
}

func paginate[T any](all []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
