package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codearena/internal/identity"
	"codearena/internal/testutil"
	"codearena/internal/user/model"
	"codearena/internal/user/repository"
	"codearena/internal/user/service"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const waitFor = 2 * time.Second

type fakeProvider struct {
	mu          sync.Mutex
	nextID      int
	listeners   map[int]identity.Listener
	session     *identity.Snapshot
	sessionErr  error
	sessionGate chan struct{}
	signInErr   error
	signOutErr  error

	sessionCalls atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{listeners: make(map[int]identity.Listener)}
}

func (p *fakeProvider) Session(ctx context.Context) (*identity.Snapshot, error) {
	p.sessionCalls.Add(1)
	if p.sessionGate != nil {
		<-p.sessionGate
	}
	return p.session, p.sessionErr
}

func (p *fakeProvider) Subscribe(fn identity.Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) SignIn(context.Context) error { return p.signInErr }

func (p *fakeProvider) SignOut(context.Context) error {
	p.emit(nil)
	return p.signOutErr
}

func (p *fakeProvider) emit(snap *identity.Snapshot) {
	p.mu.Lock()
	var fns []identity.Listener
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

type fakeProfiles struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	profiles map[string]model.Profile
	errs     map[string]error
	started  chan string
	calls    atomic.Int32
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		gates:    make(map[string]chan struct{}),
		profiles: make(map[string]model.Profile),
		errs:     make(map[string]error),
		started:  make(chan string, 16),
	}
}

func (f *fakeProfiles) hold(token string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[token] = gate
	return gate
}

func (f *fakeProfiles) FetchProfile(ctx context.Context, token string) (model.Profile, error) {
	f.calls.Add(1)
	f.started <- token
	f.mu.Lock()
	gate := f.gates[token]
	profile, err := f.profiles[token], f.errs[token]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Profile{}, ctx.Err()
		}
	}
	return profile, err
}

func awaitStarted(t *testing.T, f *fakeProfiles, token string) {
	t.Helper()
	select {
	case got := <-f.started:
		testutil.AssertEqual(t, got, token)
	case <-time.After(waitFor):
		t.Fatalf("profile fetch for %q never started", token)
	}
}

type harness struct {
	provider *fakeProvider
	profiles *fakeProfiles
	tokens   *repository.TokenCache
	ctrl     *service.SessionController
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		provider: newFakeProvider(),
		profiles: newFakeProfiles(),
		tokens:   repository.NewTokenCache(repository.NewMemoryStore()),
	}
	h.profiles.profiles["tok-a"] = model.Profile{ID: "user-a", Username: "alice", Role: "coder"}
	h.profiles.profiles["tok-b"] = model.Profile{ID: "user-b", Username: "bob", Role: "admin"}
	h.ctrl = service.NewSessionController(h.provider, h.profiles, h.tokens)
	t.Cleanup(h.ctrl.Close)
	return h
}

func snapshot(token string) *identity.Snapshot {
	return &identity.Snapshot{Subject: "sub-" + token, Email: token + "@example.com", Token: token}
}

func (h *harness) phase() model.SessionPhase {
	return h.ctrl.State().Phase
}

func TestStartupWithoutSessionIsAnonymous(t *testing.T) {
	h := newHarness(t)
	testutil.AssertEqual(t, h.phase(), model.SessionInitializing)

	h.ctrl.Startup(context.Background())

	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)
	testutil.AssertEqual(t, h.ctrl.Credential(), "")
	testutil.AssertEqual(t, h.profiles.calls.Load(), int32(0))
}

func TestStartupRestoresSession(t *testing.T) {
	h := newHarness(t)
	h.provider.session = snapshot("tok-b")

	h.ctrl.Startup(context.Background())

	st := h.ctrl.State()
	testutil.AssertEqual(t, st.Phase, model.SessionAuthenticated)
	testutil.AssertEqual(t, st.UserID(), "user-b")
	testutil.AssertEqual(t, st.User.DisplayName, "bob")
	testutil.AssertTrue(t, st.IsAdmin(), "role admin must yield admin")
	testutil.AssertEqual(t, h.ctrl.Credential(), "tok-b")
}

func TestStartupRunsOnce(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Startup(context.Background())
	h.ctrl.Startup(context.Background())

	testutil.AssertEqual(t, h.provider.sessionCalls.Load(), int32(1))
}

func TestStartupQueryFailureDegradesToAnonymous(t *testing.T) {
	h := newHarness(t)
	h.provider.sessionErr = errors.New("provider down")

	h.ctrl.Startup(context.Background())

	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)
}

// Scenario D: a logout lands while the profile fetch of an earlier login is
// still in flight.
func TestLogoutDuringReconciliationNeverFlashesAuthenticated(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Startup(context.Background())
	gate := h.profiles.hold("tok-a")

	var mu sync.Mutex
	var seen []model.SessionPhase
	h.ctrl.Subscribe(func(st model.SessionState) {
		mu.Lock()
		seen = append(seen, st.Phase)
		mu.Unlock()
	})

	h.provider.emit(snapshot("tok-a"))
	awaitStarted(t, h.profiles, "tok-a")
	h.provider.emit(nil)
	testutil.Eventually(t, waitFor, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, "logout commit")

	close(gate)
	h.ctrl.Wait()

	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)
	testutil.AssertEqual(t, h.ctrl.Credential(), "")
	mu.Lock()
	defer mu.Unlock()
	for _, p := range seen {
		testutil.AssertTrue(t, p != model.SessionAuthenticated, "stale login must never commit")
	}
}

func TestStartupResolvingAfterLogoutDoesNotResurrect(t *testing.T) {
	h := newHarness(t)
	h.provider.session = snapshot("tok-a")
	h.provider.sessionGate = make(chan struct{})

	done := make(chan struct{})
	go func() {
		h.ctrl.Startup(context.Background())
		close(done)
	}()
	testutil.Eventually(t, waitFor, func() bool { return h.provider.sessionCalls.Load() == 1 }, "startup query")

	h.ctrl.OnIdentityEvent(context.Background(), nil)
	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)

	close(h.provider.sessionGate)
	<-done

	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)
	testutil.AssertEqual(t, h.ctrl.Credential(), "")
}

func TestNewerLoginSupersedesSlowerOlderOne(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Startup(context.Background())
	gate := h.profiles.hold("tok-a")

	h.provider.emit(snapshot("tok-a"))
	awaitStarted(t, h.profiles, "tok-a")
	h.provider.emit(snapshot("tok-b"))
	awaitStarted(t, h.profiles, "tok-b")
	testutil.Eventually(t, waitFor, func() bool { return h.ctrl.State().UserID() == "user-b" }, "user b committed")

	close(gate)
	h.ctrl.Wait()

	testutil.AssertEqual(t, h.ctrl.State().UserID(), "user-b")
	testutil.AssertEqual(t, h.ctrl.Credential(), "tok-b")
}

func TestOlderLoginResolvingFirstNeverPairsWithNewerCredential(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetGlobal(logger.NewWithZap(zap.New(core)))
	t.Cleanup(func() { logger.SetGlobal(logger.NewWithZap(zap.NewNop())) })

	h := newHarness(t)
	h.ctrl.Startup(context.Background())
	gateA := h.profiles.hold("tok-a")
	gateB := h.profiles.hold("tok-b")

	h.provider.emit(snapshot("tok-a"))
	awaitStarted(t, h.profiles, "tok-a")
	h.provider.emit(snapshot("tok-b"))
	awaitStarted(t, h.profiles, "tok-b")

	close(gateA)
	testutil.Eventually(t, waitFor, func() bool {
		return logs.FilterMessage("stale reconciliation dropped").Len() == 1
	}, "older login dropped")

	st := h.ctrl.State()
	testutil.AssertTrue(t, st.UserID() != "user-a", "older user must not commit while a newer login is in flight")
	testutil.AssertEqual(t, st.Phase, model.SessionAnonymous)
	testutil.AssertEqual(t, h.ctrl.Credential(), "tok-b")

	close(gateB)
	h.ctrl.Wait()

	testutil.AssertEqual(t, h.ctrl.State().UserID(), "user-b")
	testutil.AssertEqual(t, h.ctrl.Credential(), "tok-b")
}

func TestReconciliationFailureClearsCredentialAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.SetGlobal(logger.NewWithZap(zap.New(core)))
	t.Cleanup(func() { logger.SetGlobal(logger.NewWithZap(zap.NewNop())) })

	h := newHarness(t)
	h.ctrl.Startup(context.Background())
	h.profiles.errs["tok-a"] = pkgerrors.New(pkgerrors.ServiceUnavailable)

	h.ctrl.OnIdentityEvent(context.Background(), snapshot("tok-a"))

	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)
	testutil.AssertEqual(t, h.ctrl.Credential(), "")
	testutil.AssertEqual(t, logs.FilterMessage("session reconciliation failed").Len(), 1)
}

func TestOlderFailureDoesNotClearNewerCredential(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Startup(context.Background())
	h.profiles.errs["tok-a"] = errors.New("boom")
	gate := h.profiles.hold("tok-a")

	h.provider.emit(snapshot("tok-a"))
	awaitStarted(t, h.profiles, "tok-a")
	h.provider.emit(snapshot("tok-b"))
	awaitStarted(t, h.profiles, "tok-b")
	testutil.Eventually(t, waitFor, func() bool { return h.ctrl.State().UserID() == "user-b" }, "user b committed")

	close(gate)
	h.ctrl.Wait()

	testutil.AssertEqual(t, h.ctrl.State().UserID(), "user-b")
	testutil.AssertEqual(t, h.ctrl.Credential(), "tok-b")
}

func TestSignOutWhileReconciling(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Startup(context.Background())
	gate := h.profiles.hold("tok-a")
	h.provider.signOutErr = errors.New("revoke failed")

	h.provider.emit(snapshot("tok-a"))
	awaitStarted(t, h.profiles, "tok-a")

	err := h.ctrl.SignOut(context.Background())
	testutil.AssertTrue(t, err != nil, "revoke error is reported")
	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)
	testutil.AssertEqual(t, h.ctrl.Credential(), "")

	close(gate)
	h.ctrl.Wait()

	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)
	testutil.AssertEqual(t, h.ctrl.Credential(), "")
}

func TestSignOutFromAuthenticated(t *testing.T) {
	h := newHarness(t)
	h.provider.session = snapshot("tok-a")
	h.ctrl.Startup(context.Background())
	testutil.AssertEqual(t, h.phase(), model.SessionAuthenticated)

	testutil.MustNoError(t, h.ctrl.SignOut(context.Background()))
	h.ctrl.Wait()

	testutil.AssertEqual(t, h.phase(), model.SessionAnonymous)
	testutil.AssertEqual(t, h.ctrl.Credential(), "")
}

func TestSignInErrorIsReturned(t *testing.T) {
	h := newHarness(t)
	h.provider.signInErr = pkgerrors.New(pkgerrors.IdentityProviderFailed)

	err := h.ctrl.SignIn(context.Background())
	testutil.AssertCode(t, err, pkgerrors.IdentityProviderFailed)
}

func TestSubscribersSeeEveryCommit(t *testing.T) {
	h := newHarness(t)
	var got []string
	cancel := h.ctrl.Subscribe(func(st model.SessionState) {
		got = append(got, st.Phase.String()+":"+st.UserID())
	})

	h.ctrl.Startup(context.Background())
	h.ctrl.OnIdentityEvent(context.Background(), snapshot("tok-a"))
	h.ctrl.OnIdentityEvent(context.Background(), nil)
	cancel()
	h.ctrl.OnIdentityEvent(context.Background(), snapshot("tok-b"))

	testutil.AssertEqual(t, len(got), 3)
	testutil.AssertEqual(t, got[0], "anonymous:")
	testutil.AssertEqual(t, got[1], "authenticated:user-a")
	testutil.AssertEqual(t, got[2], "anonymous:")
}

func TestUserIsReplacedWholesale(t *testing.T) {
	h := newHarness(t)
	bio := "hello"
	h.profiles.profiles["tok-a"] = model.Profile{ID: "user-a", Username: "alice", Bio: &bio}
	h.ctrl.OnIdentityEvent(context.Background(), snapshot("tok-a"))
	first := h.ctrl.State().User

	h.profiles.mu.Lock()
	h.profiles.profiles["tok-a"] = model.Profile{ID: "user-a", Email: "new@example.com"}
	h.profiles.mu.Unlock()
	h.ctrl.OnIdentityEvent(context.Background(), snapshot("tok-a"))
	second := h.ctrl.State().User

	testutil.AssertEqual(t, *first.Bio, "hello")
	testutil.AssertTrue(t, second.Bio == nil, "bio must not leak from the previous reconciliation")
	testutil.AssertEqual(t, second.DisplayName, "new")
	testutil.AssertEqual(t, first.DisplayName, "alice")
}
