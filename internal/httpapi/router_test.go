package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/authn"
	"github.com/horcrux-project/horcrux/internal/authz"
	"github.com/horcrux-project/horcrux/internal/config"
	"github.com/horcrux-project/horcrux/internal/console"
	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
	"github.com/horcrux-project/horcrux/internal/lifecycle"
	network "github.com/horcrux-project/horcrux/internal/netalloc"
	"github.com/horcrux-project/horcrux/internal/store"
)

// noopAdapter is a hypervisor.Adapter good enough for testing the HTTP
// surface — none of these tests exercise real VM backend behavior.
type noopAdapter struct{}

func (noopAdapter) Start(ctx context.Context, spec hypervisor.VMSpec) error { return nil }
func (noopAdapter) Stop(ctx context.Context, id string, mode hypervisor.StopMode) error {
	return nil
}
func (noopAdapter) Pause(ctx context.Context, id string) error  { return nil }
func (noopAdapter) Resume(ctx context.Context, id string) error { return nil }
func (noopAdapter) SnapshotCreate(ctx context.Context, id string, opts hypervisor.SnapshotOptions) error {
	return nil
}
func (noopAdapter) SnapshotRestore(ctx context.Context, id, path string) error { return nil }
func (noopAdapter) SnapshotDelete(ctx context.Context, id, snapshotID string) error {
	return nil
}
func (noopAdapter) Clone(ctx context.Context, id string, opts hypervisor.CloneOptions) error {
	return nil
}
func (noopAdapter) DiskAttach(ctx context.Context, id string, disk hypervisor.DiskSpec) error {
	return hypervisor.ErrUnsupported
}
func (noopAdapter) DiskDetach(ctx context.Context, id, diskID string) error {
	return hypervisor.ErrUnsupported
}
func (noopAdapter) Stats(ctx context.Context, id string) (hypervisor.Stats, error) {
	return hypervisor.Stats{}, hypervisor.ErrUnsupported
}
func (noopAdapter) Info(ctx context.Context, id string) (hypervisor.RuntimeInfo, error) {
	return hypervisor.RuntimeInfo{}, hypervisor.ErrUnsupported
}
func (noopAdapter) ConsoleEndpoint(ctx context.Context, id string, kind hypervisor.ConsoleKind) (hypervisor.Endpoint, error) {
	return hypervisor.Endpoint{Kind: kind, Network: "tcp", Address: "127.0.0.1:0"}, nil
}
func (noopAdapter) MigrateBegin(ctx context.Context, id string, target hypervisor.MigrationTarget) error {
	return nil
}
func (noopAdapter) MigrateAdvance(ctx context.Context, id string) (hypervisor.MigrationProgress, error) {
	return hypervisor.MigrationProgress{}, nil
}
func (noopAdapter) MigrateFinalize(ctx context.Context, id string) error { return nil }
func (noopAdapter) MigrateAbort(ctx context.Context, id string) error    { return nil }
func (noopAdapter) Capabilities() hypervisor.Capabilities                { return hypervisor.Capabilities{} }

// noopNet is a network.Manager that hands out a fixed allocation, enough
// for lifecycle.Create/Start to proceed without a real TAP/bridge.
type noopNet struct{}

func (noopNet) Initialize(ctx context.Context, existing []network.Allocation) error { return nil }
func (noopNet) CreateAllocation(ctx context.Context, req network.AllocateRequest) (*network.NetworkConfig, error) {
	return &network.NetworkConfig{IP: "10.0.0.2", MAC: "02:00:00:00:00:01", TAPDevice: "tap-test"}, nil
}
func (noopNet) RecreateAllocation(ctx context.Context, alloc network.Allocation) error { return nil }
func (noopNet) ReleaseAllocation(ctx context.Context, alloc *network.Allocation) error { return nil }
func (noopNet) GetAllocation(ctx context.Context, ownerID string) (*network.Allocation, error) {
	return &network.Allocation{OwnerID: ownerID}, nil
}
func (noopNet) ListAllocations(ctx context.Context) ([]network.Allocation, error) { return nil, nil }
func (noopNet) NameExists(ctx context.Context, name string) (bool, error)         { return false, nil }

type testServer struct {
	srv   *Server
	authn authn.Manager
	authz authz.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dbPath := t.TempDir() + "/horcrux.db"
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Config{
		AuthJwtSecret:        "test-secret",
		AuthSessionTTL:       3600,
		AuthArgon2MemoryKB:   8 * 1024,
		AuthArgon2Iterations: 1,
		AuthRateLimitPerMin:  1000,
	}

	am := authn.NewManager(st, cfg)
	zm := authz.NewManager(st, cfg)
	for _, role := range authz.DefaultRoles() {
		if err := zm.CreateRole(context.Background(), role); err != nil {
			t.Fatalf("seed role: %v", err)
		}
	}

	inv := inventory.NewManager(st)
	lm := lifecycle.NewManager(inv, noopAdapter{}, noopNet{}, st)
	cm := console.NewManager(5 * time.Minute)
	bus := eventbus.NewBus(16)

	srv := NewServer(Deps{
		Lifecycle: lm,
		Inventory: inv,
		Authn:     am,
		Authz:     zm,
		Console:   cm,
		Bus:       bus,
		Adapter:   noopAdapter{},
		Argon2:    argon2Params{MemoryKB: cfg.AuthArgon2MemoryKB, Iterations: cfg.AuthArgon2Iterations},
	}, "horcrux-test", nil)

	return &testServer{srv: srv, authn: am, authz: zm}
}

func (ts *testServer) createUser(t *testing.T, username, password string, roleIDs []string) {
	t.Helper()
	hash, err := authn.HashPassword(password, 8*1024, 1)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = ts.authn.CreateUser(context.Background(), authn.User{
		ID:           username,
		Username:     username,
		PasswordHash: hash,
		RoleIDs:      roleIDs,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func TestHealthIsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginWrongPasswordReturnsAuthenticationFailed(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "correct-horse", []string{"role-viewer"})

	body, _ := json.Marshal(loginRequest{Username: "alice", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
	var env envelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error != string(KindAuthenticationFailed) {
		t.Fatalf("expected AuthenticationFailed, got %s", env.Error)
	}
}

// TestViewerDeniedPowerMgmt mirrors spec §5's RBAC denial worked example:
// a viewer-scoped principal hitting a VmPowerMgmt-gated route gets a
// Forbidden envelope, not a silent allow.
func TestViewerDeniedPowerMgmt(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "viewer1", "password123", []string{"role-viewer"})
	token := ts.login(t, "viewer1", "password123")

	body, _ := json.Marshal(createVMRequest{ID: "vm-1", Name: "vm-1", VCPUs: 1, MemoryMB: 512})
	req := httptest.NewRequest(http.MethodPost, "/api/vms", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	var env envelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error != string(KindForbidden) {
		t.Fatalf("expected Forbidden, got %s", env.Error)
	}
}

func TestOperatorCanCreateAndReadVM(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "op1", "password123", []string{"role-operator"})
	token := ts.login(t, "op1", "password123")

	body, _ := json.Marshal(createVMRequest{ID: "vm-2", Name: "vm-2", VCPUs: 1, MemoryMB: 512})
	req := httptest.NewRequest(http.MethodPost, "/api/vms", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/vms/vm-2", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/vms", nil)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// TestConsoleTicketReuseRejected mirrors spec §5's ticket-reuse worked
// example: after a console ticket is issued, attaching it twice through
// the console manager fails on the second attempt.
func TestConsoleTicketReuseRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "admin1", "password123", []string{"role-admin"})
	token := ts.login(t, "admin1", "password123")

	body, _ := json.Marshal(createVMRequest{ID: "vm-3", Name: "vm-3", VCPUs: 1, MemoryMB: 512})
	req := httptest.NewRequest(http.MethodPost, "/api/vms", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create vm: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/console/vm-3/vnc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue ticket: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var ticketResp consoleTicketResponse
	json.Unmarshal(rec.Body.Bytes(), &ticketResp)

	if _, err := ts.srv.deps.Console.Attach(ticketResp.TicketID); err != nil {
		t.Fatalf("first attach: expected success, got %v", err)
	}
	if _, err := ts.srv.deps.Console.Attach(ticketResp.TicketID); err == nil {
		t.Fatal("second attach: expected an error for a reused ticket")
	}
}
