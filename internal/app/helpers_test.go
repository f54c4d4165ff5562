package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"courier/api/internal/auth"
	"courier/api/internal/gate"
	"courier/api/internal/rbac"
	"courier/api/internal/store"
)

var testSecret = []byte("test-secret")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	service *Service
	store   *store.SQLStore
	clock   *testClock
}

func newFixture(t *testing.T, wrap func(*store.SQLStore) dataStore) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenDriver(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("OpenDriver() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	seq := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	var seqMu sync.Mutex
	st := store.NewSQLStore(db, nil, store.WithClock(func() time.Time {
		seqMu.Lock()
		defer seqMu.Unlock()
		seq = seq.Add(time.Second)
		return seq
	}))

	clock := &testClock{now: time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)}
	g := gate.New(gate.WithClock(clock.Now))

	var ds dataStore = st
	if wrap != nil {
		ds = wrap(st)
	}
	svc := NewService(ds, g, auth.NewVerifier(testSecret), WithRetry(3, 0))
	return &fixture{service: svc, store: st, clock: clock}
}

func (f *fixture) user(t *testing.T, name string, role rbac.Role) store.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), store.User{Username: name, Email: name + "@example.test", Role: string(role)})
	if err != nil {
		t.Fatalf("CreateUser(%s) error = %v", name, err)
	}
	return u
}

func as(u store.User) Call {
	return Call{Caller: &gate.Caller{ID: u.ID, Role: rbac.Role(u.Role)}, RemoteAddr: "10.0.0." + u.Username}
}

func tokenFor(t *testing.T, u store.User) string {
	t.Helper()
	claims := auth.Claims{
		Role:     u.Role,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func kindOf(t *testing.T, err error) *DomainError {
	t.Helper()
	domainErr, ok := err.(*DomainError)
	if !ok {
		t.Fatalf("error = %T %v, want *DomainError", err, err)
	}
	return domainErr
}
