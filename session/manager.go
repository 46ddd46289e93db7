package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type EventType string

const (
	EventSignedIn    EventType = "signed_in"
	EventSignedOut   EventType = "signed_out"
	EventUserUpdated EventType = "user_updated"
)

type Event struct {
	Type   EventType
	UserId string
	// Profile is nil after sign out
	Profile *model.Profile
}

type sessionChange struct {
	eventType EventType
	identity  *Identity
}

const changeQueueSize = 64

// ChangeSubscriber delivers committed table changes, including those made by
// other server instances
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, table string, fn func(realtime.Change)) (func(), error)
}

// Manager owns the authenticated principals and their profiles. Profiles
// are provisioned on first access and cached per user.
type Manager struct {
	auth   AuthProvider
	db     appDb.ProfileDatabase
	rules  *RoleRules
	logger *zap.Logger
	now    func() time.Time

	// resolves coalesces concurrent profile fetches for the same user id
	resolves singleflight.Group

	profilesMu sync.RWMutex
	profiles   map[string]*model.Profile

	listenersMu    sync.Mutex
	listeners      map[int]func(Event)
	nextListenerId int

	lifecycleMu sync.Mutex
	running     bool
	changes     chan *sessionChange
	done        chan struct{}
	wg          sync.WaitGroup
	unwatch     func()
}

func NewManager(auth AuthProvider, db appDb.ProfileDatabase, rules *RoleRules, logger *zap.Logger) *Manager {
	if rules == nil {
		rules = &RoleRules{}
	}
	return &Manager{
		auth:      auth,
		db:        db,
		rules:     rules,
		logger:    logger,
		now:       time.Now,
		profiles:  make(map[string]*model.Profile),
		listeners: make(map[int]func(Event)),
		changes:   make(chan *sessionChange, changeQueueSize),
	}
}

// Init starts processing session changes. Calling it twice is a no-op.
func (m *Manager) Init(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.loop(ctx, m.done)
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case change := <-m.changes:
			m.handleChange(ctx, change)
		}
	}
}

// Dispose stops change processing and drops every listener
func (m *Manager) Dispose() {
	m.lifecycleMu.Lock()
	unwatch := m.unwatch
	m.unwatch = nil
	running := m.running
	if running {
		m.running = false
		close(m.done)
	}
	m.lifecycleMu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if !running {
		return
	}

	m.wg.Wait()

	m.listenersMu.Lock()
	m.listeners = make(map[int]func(Event))
	m.listenersMu.Unlock()
}

// WatchProfiles drops cached profiles whenever their row changes so role and
// verification edits made elsewhere are picked up on the next resolve
func (m *Manager) WatchProfiles(ctx context.Context, subscriber ChangeSubscriber) error {
	unwatch, err := subscriber.Subscribe(ctx, realtime.TableProfiles, m.onProfileChange)
	if err != nil {
		return err
	}
	m.lifecycleMu.Lock()
	previous := m.unwatch
	m.unwatch = unwatch
	m.lifecycleMu.Unlock()
	if previous != nil {
		previous()
	}
	return nil
}

func (m *Manager) onProfileChange(change realtime.Change) {
	if change.Type == realtime.EventInsert {
		return
	}
	var row struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(change.Payload, &row); err != nil || row.Id == "" {
		m.logger.Warn("ignoring malformed profile change", zap.Error(err))
		return
	}
	m.forget(row.Id)
}

// OnChange registers fn for session events and returns a func removing it
func (m *Manager) OnChange(fn func(Event)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.nextListenerId++
	id := m.nextListenerId
	m.listeners[id] = fn
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) publish(eventType EventType, identity *Identity) {
	m.lifecycleMu.Lock()
	running := m.running
	m.lifecycleMu.Unlock()
	if !running {
		return
	}
	select {
	case m.changes <- &sessionChange{eventType: eventType, identity: identity}:
	default:
		m.logger.Warn("session change queue full, dropping event",
			zap.String("event", string(eventType)),
			zap.String("userId", identity.UID))
	}
}

// handleChange re-resolves the profile for every event except sign out
func (m *Manager) handleChange(ctx context.Context, change *sessionChange) {
	uid := change.identity.UID
	m.forget(uid)
	event := Event{Type: change.eventType, UserId: uid}
	if change.eventType != EventSignedOut {
		profile, err := m.ResolveProfile(ctx, change.identity)
		if err != nil {
			m.logger.Warn("failed to resolve profile after session change",
				zap.String("userId", uid),
				zap.Error(err))
		}
		event.Profile = profile
	}

	m.listenersMu.Lock()
	listeners := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// Authenticate verifies an id token and resolves the caller's profile
func (m *Manager) Authenticate(ctx context.Context, idToken string) (*model.Profile, error) {
	identity, err := m.auth.VerifySession(ctx, idToken)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return nil, err
		}
		return nil, errors.Join(ErrInvalidSession, err)
	}
	return m.ResolveProfile(ctx, identity)
}

// ResolveProfile returns the profile for identity, provisioning it on first
// access. Store failures degrade to a locally fabricated profile which is
// retried against the store on the next resolve.
func (m *Manager) ResolveProfile(ctx context.Context, identity *Identity) (*model.Profile, error) {
	if identity == nil || identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	if profile := m.Profile(identity.UID); profile != nil && profile.Persisted {
		return profile, nil
	}
	result, _, _ := m.resolves.Do(identity.UID, func() (interface{}, error) {
		return m.fetchOrProvision(ctx, identity), nil
	})
	return result.(*model.Profile), nil
}

func (m *Manager) fetchOrProvision(ctx context.Context, identity *Identity) *model.Profile {
	profile, err := m.db.GetProfile(ctx, identity.UID)
	if err != nil {
		m.logger.Warn("profile fetch failed, falling back to local profile",
			zap.String("userId", identity.UID),
			zap.Error(err))
		return m.fallback(identity)
	}
	if profile != nil {
		profile.Persisted = true
		m.remember(profile)
		return profile
	}

	profile = m.synthesize(identity, m.roleFor(identity))
	if err := m.db.CreateProfile(ctx, profile); err != nil {
		if appDb.IsDupKeyErr(err) {
			if existing, getErr := m.db.GetProfile(ctx, identity.UID); getErr == nil && existing != nil {
				existing.Persisted = true
				m.remember(existing)
				return existing
			}
		}
		m.logger.Warn("profile provisioning failed, falling back to local profile",
			zap.String("userId", identity.UID),
			zap.Error(err))
		profile.Persisted = false
		m.remember(profile)
		return profile
	}
	profile.Persisted = true
	m.logger.Info("provisioned profile",
		zap.String("userId", profile.Id),
		zap.String("role", string(profile.Role)))
	m.remember(profile)
	return profile
}

func (m *Manager) fallback(identity *Identity) *model.Profile {
	if cached := m.Profile(identity.UID); cached != nil {
		return cached
	}
	profile := m.synthesize(identity, m.roleFor(identity))
	m.remember(profile)
	return profile
}

func (m *Manager) roleFor(identity *Identity) model.Role {
	if identity.Role != "" {
		return identity.Role
	}
	// anyone can register an address on a privileged domain
	if !identity.EmailVerified {
		return model.RoleCitizen
	}
	return m.rules.RoleForEmail(identity.Email)
}

func (m *Manager) synthesize(identity *Identity, role model.Role) *model.Profile {
	displayName := strings.TrimSpace(identity.DisplayName)
	if displayName == "" {
		displayName = strings.Split(identity.Email, "@")[0]
	}
	if displayName == "" {
		displayName = "Citizen"
	}
	return &model.Profile{
		Id:          identity.UID,
		DisplayName: displayName,
		Email:       identity.Email,
		Role:        role,
		CreatedAt:   m.now().UTC(),
	}
}

// Profile returns the cached profile for uid, nil if none was resolved yet
func (m *Manager) Profile(uid string) *model.Profile {
	m.profilesMu.RLock()
	defer m.profilesMu.RUnlock()
	return m.profiles[uid]
}

func (m *Manager) remember(profile *model.Profile) {
	m.profilesMu.Lock()
	defer m.profilesMu.Unlock()
	m.profiles[profile.Id] = profile
}

func (m *Manager) forget(uid string) {
	m.profilesMu.Lock()
	defer m.profilesMu.Unlock()
	delete(m.profiles, uid)
}

func (m *Manager) SignIn(ctx context.Context, email string, password string) (*Credentials, *model.Profile, error) {
	credentials, err := m.auth.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, nil, err
	}
	profile, err := m.ResolveProfile(ctx, credentials.Identity)
	if err != nil {
		return nil, nil, err
	}
	m.publish(EventSignedIn, credentials.Identity)
	return credentials, profile, nil
}

// SignUp creates the account and its profile. Elevated roles need the
// configured verification code and start out verified.
func (m *Manager) SignUp(ctx context.Context, req *SignUpRequest) (*model.Profile, error) {
	role := model.ParseRole(string(req.Role))
	if err := m.rules.CheckVerificationCode(role, req.VerificationCode); err != nil {
		return nil, err
	}
	req.Role = role
	req.Email = strings.TrimSpace(req.Email)

	identity, err := m.auth.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}

	profile := m.synthesize(identity, role)
	profile.IsVerified = role.IsElevated()
	if err := m.db.CreateProfile(ctx, profile); err != nil {
		m.logger.Warn("profile creation at sign up failed, falling back to local profile",
			zap.String("userId", identity.UID),
			zap.Error(err))
	} else {
		profile.Persisted = true
	}
	m.remember(profile)
	m.publish(EventUserUpdated, identity)
	return profile, nil
}

func (m *Manager) SignOut(ctx context.Context, uid string) error {
	if err := m.auth.SignOut(ctx, uid); err != nil {
		return err
	}
	m.forget(uid)
	m.publish(EventSignedOut, &Identity{UID: uid})
	return nil
}

// UpdateProfile writes the update and refreshes the cached profile
func (m *Manager) UpdateProfile(ctx context.Context, uid string, update *appDb.ProfileUpdate) (*model.Profile, error) {
	if err := m.db.UpdateProfile(ctx, uid, update); err != nil {
		return nil, err
	}
	m.forget(uid)
	profile, err := m.db.GetProfile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, appDb.ErrNotFound
	}
	profile.Persisted = true
	m.remember(profile)
	m.publish(EventUserUpdated, &Identity{
		UID:         profile.Id,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		Role:        profile.Role,
	})
	return profile, nil
}
