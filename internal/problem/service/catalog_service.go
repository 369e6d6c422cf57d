package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"codearena/internal/problem/model"
	"codearena/internal/problem/repository"
	usermodel "codearena/internal/user/model"
	userrepo "codearena/internal/user/repository"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultListTTL   = 2 * time.Minute
	defaultCacheSize = 16
	anonymousKey     = "anon"
)

// SessionReader is the catalog's view of the session controller.
type SessionReader interface {
	State() usermodel.SessionState
}

// CatalogService lists and loads problems. Lists are cached per viewing user
// until they expire or something invalidates them.
type CatalogService struct {
	repo    repository.ProblemRepository
	session SessionReader
	creds   userrepo.CredentialReader
	cache   *repository.LRUCache[[]model.Problem]
	group   singleflight.Group

	mu       sync.Mutex
	gen      uint64
	lastUser string
}

func NewCatalogService(repo repository.ProblemRepository, session SessionReader, creds userrepo.CredentialReader, ttl time.Duration) *CatalogService {
	if ttl <= 0 {
		ttl = defaultListTTL
	}
	return &CatalogService{
		repo:    repo,
		session: session,
		creds:   creds,
		cache:   repository.NewLRUCache[[]model.Problem](defaultCacheSize, ttl),
	}
}

// List returns the problems annotated for the current user when signed in.
func (s *CatalogService) List(ctx context.Context) ([]model.Problem, error) {
	userID := s.session.State().UserID()
	key := cacheKey(userID)
	if cached, ok := s.cache.Get(key); ok {
		return cloneProblems(cached), nil
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	// Callers arriving after an invalidation must not join a flight that predates it.
	flight := key + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := s.group.Do(flight, func() (interface{}, error) {
		fetchCtx := ctx
		if userID != "" {
			fetchCtx = context.WithValue(ctx, contextkey.UserID, userID)
		}
		problems, err := s.repo.List(fetchCtx, userID, s.creds.Credential())
		if err != nil {
			logger.Warn(fetchCtx, "list problems failed", zap.Error(err))
			return nil, err
		}
		s.mu.Lock()
		// An invalidation during the fetch means this list may predate it.
		if s.gen == gen {
			s.cache.Set(key, problems, 0)
		}
		s.mu.Unlock()
		return problems, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneProblems(v.([]model.Problem)), nil
}

// Get loads a single problem with its description. Detail reads are not cached.
func (s *CatalogService) Get(ctx context.Context, problemID string) (model.Problem, error) {
	ctx = context.WithValue(ctx, contextkey.ProblemID, problemID)
	p, err := s.repo.Get(ctx, problemID)
	if err != nil {
		logger.Debug(ctx, "get problem failed", zap.Error(err))
		return model.Problem{}, err
	}
	return p, nil
}

// Invalidate drops every cached list so the next List refetches.
func (s *CatalogService) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.cache.Purge()
	s.mu.Unlock()
}

// OnSessionState drops the previous user's cached list when the identity changes.
func (s *CatalogService) OnSessionState(state usermodel.SessionState) {
	if state.Phase == usermodel.SessionInitializing {
		return
	}
	userID := state.UserID()
	s.mu.Lock()
	prev := s.lastUser
	s.lastUser = userID
	s.mu.Unlock()
	if prev != userID && prev != "" {
		s.cache.Delete(cacheKey(prev))
	}
}

func cacheKey(userID string) string {
	if userID == "" {
		return anonymousKey
	}
	return "user:" + userID
}

// cloneProblems copies the list deeply enough that callers cannot mutate the cache.
func cloneProblems(in []model.Problem) []model.Problem {
	out := make([]model.Problem, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Tags != nil {
			out[i].Tags = append([]string(nil), out[i].Tags...)
		}
	}
	return out
}
