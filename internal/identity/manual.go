package identity

import (
	"context"
	"sync"
	"time"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// ManualProvider accepts bearer tokens pasted by the user. It stands in for
// the OAuth flow in development and against backends without an issuer.
type ManualProvider struct {
	emitter
	restore PersistedSource
	now     func() time.Time

	mu      sync.Mutex
	current *Snapshot
}

func NewManualProvider(restore PersistedSource) *ManualProvider {
	return &ManualProvider{restore: restore, now: time.Now}
}

func (p *ManualProvider) Session(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	if p.current != nil {
		snap := *p.current
		p.mu.Unlock()
		return &snap, nil
	}
	p.mu.Unlock()

	if p.restore == nil {
		return nil, nil
	}
	raw, err := p.restore.Persisted(ctx)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	snap, err := SnapshotFromToken(raw, p.now())
	if err != nil {
		// A stale cached token is not a session; the user simply signs in again.
		logger.Info(ctx, "persisted token ignored", zap.Error(err))
		return nil, nil
	}
	p.mu.Lock()
	p.current = snap
	p.mu.Unlock()
	copied := *snap
	return &copied, nil
}

// Login installs a token and emits the login event.
func (p *ManualProvider) Login(token string) error {
	snap, err := SnapshotFromToken(token, p.now())
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = snap
	p.mu.Unlock()
	p.emit(snap)
	return nil
}

func (p *ManualProvider) SignIn(context.Context) error {
	return pkgerrors.Newf(pkgerrors.IdentityProviderFailed, "manual identity mode: use `login token=<jwt>`")
}

func (p *ManualProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.emit(nil)
	return nil
}
