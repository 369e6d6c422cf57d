package service

import (
	"context"
	"strings"

	"codearena/internal/admin/model"
	"codearena/internal/admin/repository"
	problemmodel "codearena/internal/problem/model"
	usermodel "codearena/internal/user/model"
	userrepo "codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// SessionReader is the admin client's view of the session controller.
type SessionReader interface {
	State() usermodel.SessionState
}

// CatalogInvalidator drops cached problem lists.
type CatalogInvalidator interface {
	Invalidate()
}

// AdminService gates admin calls on the known role before anything is sent.
// The backend still answers 403 for non-admins; that is mapped to PermissionDenied.
type AdminService struct {
	repo    repository.AdminRepository
	session SessionReader
	creds   userrepo.CredentialReader
	catalog CatalogInvalidator
}

func NewAdminService(repo repository.AdminRepository, session SessionReader, creds userrepo.CredentialReader, catalog CatalogInvalidator) *AdminService {
	return &AdminService{repo: repo, session: session, creds: creds, catalog: catalog}
}

func (s *AdminService) Stats(ctx context.Context) (model.Stats, error) {
	ctx, token, err := s.authorize(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	stats, err := s.repo.Stats(ctx, token)
	if err != nil {
		return model.Stats{}, s.backendError(ctx, "admin stats failed", err)
	}
	return stats, nil
}

func (s *AdminService) Users(ctx context.Context) ([]model.UserSummary, error) {
	ctx, token, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.Users(ctx, token)
	if err != nil {
		return nil, s.backendError(ctx, "admin users failed", err)
	}
	return users, nil
}

// CreateProblem validates the draft, derives a slug from the title when none
// is given and splits the comma separated tags.
func (s *AdminService) CreateProblem(ctx context.Context, draft model.ProblemDraft) (problemmodel.Problem, error) {
	ctx, token, err := s.authorize(ctx)
	if err != nil {
		return problemmodel.Problem{}, err
	}
	in, err := buildCreateInput(draft)
	if err != nil {
		return problemmodel.Problem{}, err
	}

	created, err := s.repo.CreateProblem(ctx, token, in)
	if err != nil {
		return problemmodel.Problem{}, s.backendError(ctx, "create problem failed", err)
	}
	s.invalidate()
	logger.Info(ctx, "problem created", zap.String("slug", in.Slug), zap.String("problem_id", created.ID.String()))
	return created, nil
}

func (s *AdminService) DeleteProblem(ctx context.Context, problemID string) error {
	problemID = strings.TrimSpace(problemID)
	if problemID == "" {
		return pkgerrors.ValidationError("problem_id", "must not be empty")
	}
	ctx, token, err := s.authorize(ctx)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, contextkey.ProblemID, problemID)
	if err := s.repo.DeleteProblem(ctx, token, problemID); err != nil {
		if pkgerrors.Is(err, pkgerrors.NotFound) {
			return pkgerrors.Wrap(err, pkgerrors.ProblemNotFound)
		}
		return s.backendError(ctx, "delete problem failed", err)
	}
	s.invalidate()
	logger.Info(ctx, "problem deleted")
	return nil
}

func (s *AdminService) authorize(ctx context.Context) (context.Context, string, error) {
	state := s.session.State()
	switch {
	case state.Phase == usermodel.SessionInitializing:
		return ctx, "", pkgerrors.New(pkgerrors.SessionInitializing)
	case state.Phase != usermodel.SessionAuthenticated:
		return ctx, "", pkgerrors.AuthorizationError("please sign in as an admin")
	case !state.IsAdmin():
		return ctx, "", pkgerrors.PermissionError("")
	}
	token := s.creds.Credential()
	if token == "" {
		return ctx, "", pkgerrors.AuthorizationError("please sign in as an admin")
	}
	return context.WithValue(ctx, contextkey.UserID, state.UserID()), token, nil
}

// backendError maps 401 and 403 answers and logs the rest.
func (s *AdminService) backendError(ctx context.Context, msg string, err error) error {
	switch pkgerrors.GetCode(err) {
	case pkgerrors.AuthorizationRequired, pkgerrors.PermissionDenied, pkgerrors.ValidationFailed, pkgerrors.TransportFailed:
		return err
	}
	logger.Warn(ctx, msg, zap.Error(err))
	return pkgerrors.Wrap(err, pkgerrors.AdminOperationFailed)
}

func (s *AdminService) invalidate() {
	if s.catalog != nil {
		s.catalog.Invalidate()
	}
}

func buildCreateInput(draft model.ProblemDraft) (problemmodel.CreateInput, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return problemmodel.CreateInput{}, pkgerrors.ValidationError("title", "must not be empty")
	}
	difficulty := problemmodel.DifficultyEasy
	if strings.TrimSpace(draft.Difficulty) != "" {
		d, err := problemmodel.ParseDifficulty(draft.Difficulty)
		if err != nil {
			return problemmodel.CreateInput{}, err
		}
		difficulty = d
	}
	problemSlug := strings.TrimSpace(draft.Slug)
	if problemSlug == "" || !slug.IsSlug(problemSlug) {
		source := problemSlug
		if source == "" {
			source = title
		}
		problemSlug = slug.Make(source)
	}
	if problemSlug == "" {
		return problemmodel.CreateInput{}, pkgerrors.ValidationError("slug", "cannot be derived from the title")
	}
	return problemmodel.CreateInput{
		Title:       title,
		Slug:        problemSlug,
		Description: draft.Description,
		Difficulty:  difficulty,
		Tags:        problemmodel.SplitTags(draft.Tags),
	}, nil
}
