package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/civicconnect/civic-connect-be/db/sqlstore"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Clock advances one minute per call so rows get distinct timestamps
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

// Peek returns the current time without advancing the clock
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewStore opens an in-memory SQLite store with the full schema applied
func NewStore(t testing.TB, publisher realtime.Publisher, clock *Clock) *sqlstore.Store {
	t.Helper()
	if clock == nil {
		clock = NewClock()
	}
	store, err := sqlstore.Open(context.Background(), &sqlstore.Options{
		Driver:  sqlstore.DriverSQLite,
		DSN:     ":memory:",
		Migrate: true,
		Clock:   clock.Now,
	}, publisher, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func SeedProfile(t testing.TB, store *sqlstore.Store, id string, role model.Role) *model.Profile {
	t.Helper()
	profile := &model.Profile{
		Id:          id,
		DisplayName: "User " + id,
		Email:       id + "@example.com",
		Role:        role,
		IsVerified:  role.IsElevated(),
		Persisted:   true,
	}
	require.NoError(t, store.CreateProfile(context.Background(), profile))
	return profile
}
