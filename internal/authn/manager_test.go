package authn

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/config"
	"github.com/horcrux-project/horcrux/internal/store"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "authn.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	cfg := config.Config{
		AuthJwtSecret:        "test-secret",
		AuthSessionTTL:       3600,
		AuthArgon2MemoryKB:   8 * 1024,
		AuthArgon2Iterations: 1,
	}
	return NewManager(s, cfg)
}

func mustUser(t *testing.T, m Manager, username, password string) User {
	t.Helper()
	hash, err := HashPassword(password, 8*1024, 1)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := User{ID: "user-" + username, Username: username, PasswordHash: hash, RoleIDs: []string{"operator"}}
	if err := m.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", 8*1024, 1)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	tok, err := IssueJWT("secret", "user-1", []string{"admin"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, err := ParseJWT("secret", tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UserID != "user-1" || len(p.RoleIDs) != 1 || p.RoleIDs[0] != "admin" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestJWTWrongSecretRejected(t *testing.T) {
	tok, _ := IssueJWT("secret", "user-1", nil, time.Hour)
	if _, err := ParseJWT("other-secret", tok); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateUserDuplicateUsernameRejected(t *testing.T) {
	m := newTestManager(t)
	mustUser(t, m, "alice", "hunter2")
	err := m.CreateUser(context.Background(), User{ID: "user-alice-2", Username: "alice"})
	if err != ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestIssueTokenAndAuthenticateViaJWT(t *testing.T) {
	m := newTestManager(t)
	mustUser(t, m, "alice", "hunter2")
	ctx := context.Background()
	tok, sess, err := m.IssueToken(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if sess == nil {
		t.Fatalf("expected a session to be created")
	}
	p, err := m.Authenticate(ctx, "Bearer "+tok)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != "user-alice" || p.Via != "jwt" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestIssueTokenWrongPasswordRejected(t *testing.T) {
	m := newTestManager(t)
	mustUser(t, m, "alice", "hunter2")
	if _, _, err := m.IssueToken(context.Background(), "alice", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateViaSession(t *testing.T) {
	m := newTestManager(t)
	u := mustUser(t, m, "bob", "swordfish")
	ctx := context.Background()
	sess, err := m.CreateSession(ctx, u.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	p, err := m.Authenticate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("authenticate via session: %v", err)
	}
	if p.Via != "session" || p.UserID != u.ID {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestSessionExpiry(t *testing.T) {
	m := newTestManager(t).(*manager)
	u := mustUser(t, m, "carol", "letmein")
	ctx := context.Background()
	sess, err := m.CreateSession(ctx, u.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.ResolveSession(ctx, sess.ID); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	m := newTestManager(t)
	u := mustUser(t, m, "dana", "p4ssw0rd")
	ctx := context.Background()
	key, plaintext, err := m.CreateAPIKey(ctx, u.ID, "ci", []string{"viewer"})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if key.Digest == plaintext {
		t.Fatalf("digest must not equal plaintext")
	}
	p, err := m.Authenticate(ctx, plaintext)
	if err != nil {
		t.Fatalf("authenticate via key: %v", err)
	}
	if p.Via != "apikey" || len(p.RoleIDs) != 1 || p.RoleIDs[0] != "viewer" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if err := m.DeleteAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := m.Authenticate(ctx, plaintext); err == nil {
		t.Fatalf("expected revoked key to fail authentication")
	}
}

func TestAPIKeyWrongSecretRejected(t *testing.T) {
	m := newTestManager(t)
	u := mustUser(t, m, "erin", "p4ssw0rd")
	ctx := context.Background()
	key, _, err := m.CreateAPIKey(ctx, u.ID, "ci", nil)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if _, err := m.Authenticate(ctx, key.ID+".wrongsecret"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestDisabledUserRejected(t *testing.T) {
	m := newTestManager(t)
	u := mustUser(t, m, "frank", "p4ssw0rd")
	ctx := context.Background()
	u.Disabled = true
	if err := m.(*manager).store.Update(func(tx *store.Tx) error {
		return tx.Put(store.BucketUsers, u.ID, u)
	}); err != nil {
		t.Fatalf("disable user: %v", err)
	}
	if _, _, err := m.IssueToken(ctx, "frank", "p4ssw0rd"); err != ErrUserDisabled {
		t.Fatalf("expected ErrUserDisabled, got %v", err)
	}
}

func TestAddRealmTakesPriority(t *testing.T) {
	m := newTestManager(t).(*manager)
	external := &stubRealm{p: &Principal{UserID: "external-1", Username: "ext", Via: "external"}}
	m.AddRealm(external)
	p, err := m.realm.Authenticate(context.Background(), "ext", "anything")
	if err != nil {
		t.Fatalf("authenticate via external realm: %v", err)
	}
	if p.Via != "external" {
		t.Fatalf("expected external realm to win, got %+v", p)
	}
}

type stubRealm struct {
	p   *Principal
	err error
}

func (s *stubRealm) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.p, nil
}
