package service

import (
	"context"
	"sync"

	"codearena/internal/identity"
	"codearena/internal/user/model"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/metrics"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// ProfileFetcher loads the backend profile for a bearer token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (model.Profile, error)
}

// CredentialStore is the write side of the token cache.
type CredentialStore interface {
	Credential() string
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// StateListener observes committed session states.
type StateListener func(state model.SessionState)

// SessionController reconciles identity-provider events into an authoritative
// SessionState. It is the only writer of the credential.
//
// Every reconciliation carries a sequence number taken when it is dispatched.
// A result commits only when its sequence is both newer than the last committed
// one and the newest dispatched. The credential is only touched by the newest
// dispatched reconciliation, so the committed User and the credential always
// come from the same sequence.
type SessionController struct {
	provider identity.Provider
	profiles ProfileFetcher
	tokens   CredentialStore

	startOnce sync.Once
	unsub     func()
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// credMu serializes credential writes so the seq check and the write are atomic.
	credMu sync.Mutex
	// notifyMu keeps listener delivery in commit order. Listeners must not
	// call back into SignOut or OnIdentityEvent synchronously.
	notifyMu sync.Mutex

	mu        sync.Mutex
	issued    uint64
	committed uint64
	state     model.SessionState
	nextID    int
	listeners map[int]StateListener
}

func NewSessionController(provider identity.Provider, profiles ProfileFetcher, tokens CredentialStore) *SessionController {
	ctx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		provider:  provider,
		profiles:  profiles,
		tokens:    tokens,
		ctx:       ctx,
		cancel:    cancel,
		state:     model.Initializing(),
		listeners: make(map[int]StateListener),
	}
	c.unsub = provider.Subscribe(c.dispatch)
	return c
}

// Startup queries the provider for an existing session. Only the first call
// does anything.
func (c *SessionController) Startup(ctx context.Context) {
	c.startOnce.Do(func() {
		// Reserve before querying so events arriving meanwhile supersede this check.
		seq := c.reserve()
		ctx = withSeq(ctx, seq)

		snap, err := c.provider.Session(ctx)
		if err != nil {
			logger.Warn(ctx, "identity provider session query failed", zap.Error(pkgerrors.ReconciliationError(err)))
			metrics.Reconciliations.WithLabelValues("failed").Inc()
			c.clearCredential(ctx, seq)
			c.commit(ctx, seq, model.Anonymous())
			return
		}
		c.reconcile(ctx, seq, snap)
	})
}

// OnIdentityEvent reconciles one provider event synchronously. A nil snapshot
// is a logout.
func (c *SessionController) OnIdentityEvent(ctx context.Context, snap *identity.Snapshot) {
	seq := c.reserve()
	c.reconcile(withSeq(ctx, seq), seq, snap)
}

// dispatch is the provider listener. The sequence is taken on the emitting
// goroutine; the reconciliation itself runs in the background.
func (c *SessionController) dispatch(snap *identity.Snapshot) {
	seq := c.reserve()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.reconcile(withSeq(c.ctx, seq), seq, snap)
	}()
}

// SignIn starts the provider's sign-in flow. Errors are meant for the user.
func (c *SessionController) SignIn(ctx context.Context) error {
	if err := c.provider.SignIn(ctx); err != nil {
		logger.Info(ctx, "sign-in could not start", zap.Error(err))
		return err
	}
	return nil
}

// SignOut always ends Anonymous with a cleared credential. A revoke failure
// is logged and returned, but does not keep the session alive.
func (c *SessionController) SignOut(ctx context.Context) error {
	revokeErr := c.provider.SignOut(ctx)
	if revokeErr != nil {
		logger.Warn(ctx, "identity provider sign-out failed", zap.Error(revokeErr))
	}

	seq := c.reserve()
	ctx = withSeq(ctx, seq)
	c.clearCredential(ctx, seq)
	c.commit(ctx, seq, model.Anonymous())
	return revokeErr
}

// State returns the last committed session state.
func (c *SessionController) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Credential is the read-only accessor for other components.
func (c *SessionController) Credential() string {
	return c.tokens.Credential()
}

// Subscribe registers fn for every committed state and returns its cancel func.
func (c *SessionController) Subscribe(fn StateListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Wait blocks until background reconciliations have finished.
func (c *SessionController) Wait() {
	c.wg.Wait()
}

// Close detaches from the provider and cancels background reconciliations.
func (c *SessionController) Close() {
	if c.unsub != nil {
		c.unsub()
	}
	c.cancel()
	c.wg.Wait()
}

func (c *SessionController) reconcile(ctx context.Context, seq uint64, snap *identity.Snapshot) {
	if snap == nil || snap.Token == "" {
		c.clearCredential(ctx, seq)
		c.commit(ctx, seq, model.Anonymous())
		return
	}

	// Provisional write: the profile fetch and the catalog read the cache.
	c.writeCredential(ctx, seq, snap.Token)

	profile, err := c.profiles.FetchProfile(ctx, snap.Token)
	if err != nil {
		logger.Warn(ctx, "session reconciliation failed",
			zap.String("subject", snap.Subject),
			zap.Error(pkgerrors.ReconciliationError(err)))
		metrics.Reconciliations.WithLabelValues("failed").Inc()
		c.clearCredential(ctx, seq)
		c.commit(ctx, seq, model.Anonymous())
		return
	}

	user := model.BuildUser(profile, snap.Email)
	if c.commit(ctx, seq, model.Authenticated(user)) {
		metrics.Reconciliations.WithLabelValues("authenticated").Inc()
	}
}

func (c *SessionController) reserve() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

func (c *SessionController) isLatest(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq == c.issued
}

func (c *SessionController) writeCredential(ctx context.Context, seq uint64, token string) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if !c.isLatest(seq) {
		return
	}
	if err := c.tokens.Set(ctx, token); err != nil {
		logger.Warn(ctx, "persist credential failed", zap.Error(err))
	}
}

func (c *SessionController) clearCredential(ctx context.Context, seq uint64) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	if !c.isLatest(seq) {
		return
	}
	if err := c.tokens.Clear(ctx); err != nil {
		logger.Warn(ctx, "clear credential failed", zap.Error(err))
	}
}

// commit installs state if seq is the newest dispatched and newer than the
// last commit, then notifies listeners. It reports whether the state was applied.
func (c *SessionController) commit(ctx context.Context, seq uint64, state model.SessionState) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	// Held with mu so no credential write can slip between the check and the install.
	c.credMu.Lock()
	c.mu.Lock()
	if seq <= c.committed || seq != c.issued {
		c.mu.Unlock()
		c.credMu.Unlock()
		logger.Debug(ctx, "stale reconciliation dropped", zap.String("phase", state.Phase.String()))
		metrics.Reconciliations.WithLabelValues("stale").Inc()
		return false
	}
	c.committed = seq
	c.state = state
	fns := make([]StateListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	c.credMu.Unlock()

	logger.Info(ctx, "session state committed",
		zap.String("phase", state.Phase.String()),
		zap.String("user_id", state.UserID()))
	for _, fn := range fns {
		fn(state)
	}
	return true
}

func withSeq(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, contextkey.SessionSeq, seq)
}
