package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/db/repositories"
	"github.com/msgcore/msgcore-sub001/internal/queue"
)

// ---------------------------------------------------------------------------
// Principals
// ---------------------------------------------------------------------------

const (
	projectA = "11111111-1111-1111-1111-111111111111"
	projectB = "22222222-2222-2222-2222-222222222222"
	ownerID  = "owner-user"
)

func keyCtx(projectID string, scopes ...string) *auth.AuthContext {
	return auth.NewAPIKeyContext("key-1", projectID, scopes)
}

func userCtx(userID string) *auth.AuthContext {
	return auth.NewJWTContext(userID, userID+"@example.com")
}

// ---------------------------------------------------------------------------
// In-memory stores. Every method bumps the shared touch counter so tests can
// assert that rejected calls never reach storage.
// ---------------------------------------------------------------------------

type touches struct {
	mu sync.Mutex
	n  int
}

func (t *touches) touch() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.n++
	t.mu.Unlock()
}

func (t *touches) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

var errStore = errors.New("store unavailable")

type memProjects struct {
	t        *touches
	projects map[string]*models.Project
	members  map[string]map[string]*models.ProjectMember
	err      error
}

func newMemProjects(t *touches) *memProjects {
	return &memProjects{
		t:        t,
		projects: map[string]*models.Project{},
		members:  map[string]map[string]*models.ProjectMember{},
	}
}

func (m *memProjects) seed(id, slug, owner string) *models.Project {
	p := &models.Project{ID: id, Slug: slug, Name: slug, OwnerID: owner}
	m.projects[id] = p
	m.members[id] = map[string]*models.ProjectMember{
		owner: {ProjectID: id, UserID: owner, Role: string(auth.RoleOwner)},
	}
	return p
}

func (m *memProjects) CreateProjectWithOwner(_ context.Context, p *models.Project) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	p.ID = uuid.New().String()
	m.projects[p.ID] = p
	m.members[p.ID] = map[string]*models.ProjectMember{
		p.OwnerID: {ProjectID: p.ID, UserID: p.OwnerID, Role: string(auth.RoleOwner)},
	}
	return nil
}

func (m *memProjects) GetByID(_ context.Context, id string) (*models.Project, error) {
	m.t.touch()
	if m.err != nil {
		return nil, m.err
	}
	p := m.projects[id]
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memProjects) GetBySlug(_ context.Context, slug string) (*models.Project, error) {
	m.t.touch()
	for _, p := range m.projects {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, m.err
}

func (m *memProjects) ListForUser(_ context.Context, userID string) ([]*models.ProjectWithRole, error) {
	m.t.touch()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*models.ProjectWithRole, 0)
	for id, members := range m.members {
		if mem, ok := members[userID]; ok {
			out = append(out, &models.ProjectWithRole{Project: *m.projects[id], Role: mem.Role})
		}
	}
	return out, nil
}

func (m *memProjects) Update(_ context.Context, p *models.Project) error {
	m.t.touch()
	m.projects[p.ID] = p
	return m.err
}

func (m *memProjects) Delete(_ context.Context, id string) error {
	m.t.touch()
	delete(m.projects, id)
	delete(m.members, id)
	return m.err
}

func (m *memProjects) GetMember(_ context.Context, projectID, userID string) (*models.ProjectMember, error) {
	m.t.touch()
	return m.members[projectID][userID], m.err
}

func (m *memProjects) ListMembers(_ context.Context, projectID string) ([]*models.ProjectMemberWithUser, error) {
	m.t.touch()
	out := make([]*models.ProjectMemberWithUser, 0)
	for _, mem := range m.members[projectID] {
		out = append(out, &models.ProjectMemberWithUser{ProjectMember: *mem})
	}
	return out, m.err
}

func (m *memProjects) AddMember(_ context.Context, mem *models.ProjectMember) error {
	m.t.touch()
	if m.members[mem.ProjectID] == nil {
		m.members[mem.ProjectID] = map[string]*models.ProjectMember{}
	}
	m.members[mem.ProjectID][mem.UserID] = mem
	return m.err
}

func (m *memProjects) UpdateMemberRole(_ context.Context, projectID, userID, role string) (bool, error) {
	m.t.touch()
	mem, ok := m.members[projectID][userID]
	if !ok {
		return false, m.err
	}
	mem.Role = role
	return true, m.err
}

func (m *memProjects) RemoveMember(_ context.Context, projectID, userID string) (bool, error) {
	m.t.touch()
	if _, ok := m.members[projectID][userID]; !ok {
		return false, m.err
	}
	delete(m.members[projectID], userID)
	return true, m.err
}

type memUsers struct {
	t     *touches
	users map[string]*models.User
	err   error
}

func newMemUsers(t *touches) *memUsers {
	return &memUsers{t: t, users: map[string]*models.User{}}
}

func (m *memUsers) CreateUser(_ context.Context, u *models.User) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	u.ID = uuid.New().String()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.t.touch()
	return m.users[id], m.err
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.t.touch()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

type memKeys struct {
	t    *touches
	keys map[string]*models.APIKey
	err  error

	rolledOld    string
	rolledRevoke time.Time
}

func newMemKeys(t *touches) *memKeys {
	return &memKeys{t: t, keys: map[string]*models.APIKey{}}
}

func (m *memKeys) CreateAPIKey(_ context.Context, k *models.APIKey) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	k.ID = uuid.New().String()
	m.keys[k.ID] = k
	return nil
}

func (m *memKeys) GetAPIKeyByID(_ context.Context, id string) (*models.APIKey, error) {
	m.t.touch()
	return m.keys[id], m.err
}

func (m *memKeys) ListByProject(_ context.Context, projectID string) ([]*models.APIKey, error) {
	m.t.touch()
	out := make([]*models.APIKey, 0)
	for _, k := range m.keys {
		if k.ProjectID == projectID {
			out = append(out, k)
		}
	}
	return out, m.err
}

func (m *memKeys) RevokeAPIKey(_ context.Context, projectID, keyID string, at time.Time) (bool, error) {
	m.t.touch()
	if m.err != nil {
		return false, m.err
	}
	k, ok := m.keys[keyID]
	if !ok || k.ProjectID != projectID || !k.IsValidAt(at) {
		return false, nil
	}
	k.RevokedAt = &at
	return true, nil
}

func (m *memKeys) RollAPIKey(_ context.Context, oldKeyID string, newKey *models.APIKey, revokeOldAt time.Time) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	old := m.keys[oldKeyID]
	if old == nil || old.RevokedAt != nil {
		return fmt.Errorf("failed to schedule revocation of old api key: %w", sql.ErrNoRows)
	}
	newKey.ID = uuid.New().String()
	m.keys[newKey.ID] = newKey
	old.RevokedAt = &revokeOldAt
	m.rolledOld = oldKeyID
	m.rolledRevoke = revokeOldAt
	return nil
}

type memPlatforms struct {
	t         *touches
	platforms map[string]*models.ProjectPlatform
	err       error
}

func newMemPlatforms(t *touches) *memPlatforms {
	return &memPlatforms{t: t, platforms: map[string]*models.ProjectPlatform{}}
}

func (m *memPlatforms) seed(id, projectID, platform string, active bool) *models.ProjectPlatform {
	p := &models.ProjectPlatform{ID: id, ProjectID: projectID, Platform: platform, Name: platform, IsActive: active}
	m.platforms[id] = p
	return p
}

func (m *memPlatforms) Create(_ context.Context, p *models.ProjectPlatform) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	p.ID = uuid.New().String()
	m.platforms[p.ID] = p
	return nil
}

func (m *memPlatforms) GetByID(_ context.Context, projectID, id string) (*models.ProjectPlatform, error) {
	m.t.touch()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.platforms[id]
	if !ok || p.ProjectID != projectID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPlatforms) ListByProject(_ context.Context, projectID string) ([]models.ProjectPlatform, error) {
	m.t.touch()
	out := make([]models.ProjectPlatform, 0)
	for _, p := range m.platforms {
		if p.ProjectID == projectID {
			out = append(out, *p)
		}
	}
	return out, m.err
}

func (m *memPlatforms) Update(_ context.Context, p *models.ProjectPlatform) error {
	m.t.touch()
	m.platforms[p.ID] = p
	return m.err
}

func (m *memPlatforms) Delete(_ context.Context, projectID, id string) (bool, error) {
	m.t.touch()
	p, ok := m.platforms[id]
	if !ok || p.ProjectID != projectID {
		return false, m.err
	}
	delete(m.platforms, id)
	return true, m.err
}

type memIdentities struct {
	t          *touches
	identities map[string]*models.Identity
	aliases    map[string]*models.IdentityAlias
	err        error
}

func newMemIdentities(t *touches) *memIdentities {
	return &memIdentities{t: t, identities: map[string]*models.Identity{}, aliases: map[string]*models.IdentityAlias{}}
}

func (m *memIdentities) Create(_ context.Context, ident *models.Identity) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	ident.ID = uuid.New().String()
	m.identities[ident.ID] = ident
	return nil
}

func (m *memIdentities) GetByID(_ context.Context, projectID, id string) (*models.Identity, error) {
	m.t.touch()
	ident, ok := m.identities[id]
	if !ok || ident.ProjectID != projectID {
		return nil, m.err
	}
	cp := *ident
	cp.Aliases = make([]models.IdentityAlias, 0)
	for _, a := range m.aliases {
		if a.IdentityID == id {
			cp.Aliases = append(cp.Aliases, *a)
		}
	}
	return &cp, m.err
}

func (m *memIdentities) List(_ context.Context, projectID string, limit, offset int) ([]models.Identity, error) {
	m.t.touch()
	out := make([]models.Identity, 0)
	for _, ident := range m.identities {
		if ident.ProjectID == projectID {
			out = append(out, *ident)
		}
	}
	return out, m.err
}

func (m *memIdentities) Update(_ context.Context, ident *models.Identity) error {
	m.t.touch()
	m.identities[ident.ID] = ident
	return m.err
}

func (m *memIdentities) Delete(_ context.Context, projectID, id string) (bool, error) {
	m.t.touch()
	ident, ok := m.identities[id]
	if !ok || ident.ProjectID != projectID {
		return false, m.err
	}
	delete(m.identities, id)
	return true, m.err
}

func (m *memIdentities) AddAlias(_ context.Context, a *models.IdentityAlias) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	a.ID = uuid.New().String()
	m.aliases[a.ID] = a
	return nil
}

func (m *memIdentities) RemoveAlias(_ context.Context, projectID, identityID, aliasID string) (bool, error) {
	m.t.touch()
	a, ok := m.aliases[aliasID]
	if !ok || a.ProjectID != projectID || a.IdentityID != identityID {
		return false, m.err
	}
	delete(m.aliases, aliasID)
	return true, m.err
}

func (m *memIdentities) LookupByPlatformUser(ctx context.Context, projectID, platformID, providerUserID string) (*models.Identity, error) {
	m.t.touch()
	for _, a := range m.aliases {
		if a.ProjectID == projectID && a.PlatformID == platformID && a.ProviderUserID == providerUserID {
			return m.GetByID(ctx, projectID, a.IdentityID)
		}
	}
	return nil, m.err
}

type memMessages struct {
	t        *touches
	received []models.ReceivedMessage
	sent     []*models.SentMessage
	err      error

	purgedProject string
	purgedCutoff  time.Time
}

func newMemMessages(t *touches) *memMessages {
	return &memMessages{t: t}
}

func (m *memMessages) ListReceived(_ context.Context, f repositories.ReceivedFilter) ([]models.ReceivedMessage, int, error) {
	m.t.touch()
	if m.err != nil {
		return nil, 0, m.err
	}
	matched := make([]models.ReceivedMessage, 0)
	for _, r := range m.received {
		if r.ProjectID == f.ProjectID {
			matched = append(matched, r)
		}
	}
	total := len(matched)
	if f.Offset >= len(matched) {
		return []models.ReceivedMessage{}, total, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (m *memMessages) GetReceived(_ context.Context, projectID, id string) (*models.ReceivedMessage, error) {
	m.t.touch()
	for i := range m.received {
		if m.received[i].ID == id && m.received[i].ProjectID == projectID {
			r := m.received[i]
			return &r, m.err
		}
	}
	return nil, m.err
}

func (m *memMessages) Stats(_ context.Context, projectID string) (*models.MessageStats, error) {
	m.t.touch()
	return &models.MessageStats{TotalMessages: int64(len(m.received))}, m.err
}

func (m *memMessages) DeleteReceivedOlderThan(_ context.Context, projectID string, cutoff time.Time) (int64, error) {
	m.t.touch()
	m.purgedProject = projectID
	m.purgedCutoff = cutoff
	return 3, m.err
}

func (m *memMessages) CreateSent(_ context.Context, rows ...*models.SentMessage) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	for _, s := range rows {
		s.ID = uuid.New().String()
		if s.Status == "" {
			s.Status = models.SentStatusPending
		}
	}
	m.sent = append(m.sent, rows...)
	return nil
}

func (m *memMessages) SetSentStatus(_ context.Context, ids []string, status string, errMsg *string) error {
	m.t.touch()
	for _, id := range ids {
		for _, s := range m.sent {
			if s.ID == id {
				s.Status = status
				s.ErrorMessage = errMsg
			}
		}
	}
	return m.err
}

func (m *memMessages) ListSent(_ context.Context, projectID string, status *string, limit, offset int) ([]models.SentMessage, error) {
	m.t.touch()
	out := make([]models.SentMessage, 0)
	for _, s := range m.sent {
		if s.ProjectID == projectID && (status == nil || s.Status == *status) {
			out = append(out, *s)
		}
	}
	return out, m.err
}

func (m *memMessages) GetSentByJobID(_ context.Context, projectID, jobID string) ([]models.SentMessage, error) {
	m.t.touch()
	out := make([]models.SentMessage, 0)
	for _, s := range m.sent {
		if s.ProjectID == projectID && s.JobID == jobID {
			out = append(out, *s)
		}
	}
	return out, m.err
}

type memWebhooks struct {
	t        *touches
	webhooks map[string]*models.Webhook
	err      error
}

func newMemWebhooks(t *touches) *memWebhooks {
	return &memWebhooks{t: t, webhooks: map[string]*models.Webhook{}}
}

func (m *memWebhooks) Create(_ context.Context, w *models.Webhook) error {
	m.t.touch()
	if m.err != nil {
		return m.err
	}
	w.ID = uuid.New().String()
	m.webhooks[w.ID] = w
	return nil
}

func (m *memWebhooks) GetByID(_ context.Context, projectID, id string) (*models.Webhook, error) {
	m.t.touch()
	w, ok := m.webhooks[id]
	if !ok || w.ProjectID != projectID {
		return nil, m.err
	}
	cp := *w
	return &cp, m.err
}

func (m *memWebhooks) ListByProject(_ context.Context, projectID string) ([]*models.Webhook, error) {
	m.t.touch()
	out := make([]*models.Webhook, 0)
	for _, w := range m.webhooks {
		if w.ProjectID == projectID {
			out = append(out, w)
		}
	}
	return out, m.err
}

func (m *memWebhooks) Update(_ context.Context, w *models.Webhook) error {
	m.t.touch()
	m.webhooks[w.ID] = w
	return m.err
}

func (m *memWebhooks) Delete(_ context.Context, projectID, id string) (bool, error) {
	m.t.touch()
	w, ok := m.webhooks[id]
	if !ok || w.ProjectID != projectID {
		return false, m.err
	}
	delete(m.webhooks, id)
	return true, m.err
}

type fakeSealer struct {
	sealed []map[string]string
	err    error
}

func (f *fakeSealer) SealCredentials(creds map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sealed = append(f.sealed, creds)
	if len(creds) == 0 {
		return "", nil
	}
	return "sealed", nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
	// failFrom lets that many jobs through before err applies
	failFrom int
}

func (f *fakePublisher) PublishJob(_ context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && len(f.jobs) >= f.failFrom {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakePublisher) Publish(context.Context, string, interface{}) error { return f.err }

func (f *fakePublisher) Close() error { return nil }

// GetOrCreateExternal adds a user without a local password, as the external issuer path does
func (m *memUsers) GetOrCreateExternal(email string) (*models.User, error) {
	sub := "ext|" + email
	u := &models.User{Email: email, Name: email, ExternalSub: &sub}
	return u, m.CreateUser(context.Background(), u)
}
