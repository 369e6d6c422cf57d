package command

import (
	"context"
	"sync"
	"time"

	adminservice "codearena/internal/admin/service"
	"codearena/internal/cli/view"
	"codearena/internal/identity"
	problemservice "codearena/internal/problem/service"
	submitservice "codearena/internal/submit/service"
	userservice "codearena/internal/user/service"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// App is everything a command handler can reach. Exactly one of Manual and
// OIDC is set, matching the configured identity mode.
type App struct {
	Session   *userservice.SessionController
	Manual    *identity.ManualProvider
	OIDC      *identity.OIDCProvider
	Catalog   *problemservice.CatalogService
	Workspace *submitservice.WorkspaceController
	Admin     *adminservice.AdminService
	View      *view.Renderer

	// JudgeTimeout bounds background run/submit calls; zero leaves them unbounded.
	JudgeTimeout time.Duration

	wg sync.WaitGroup
}

// Execute reads file fields and runs the command.
func (a *App) Execute(ctx context.Context, cmd Command, params Params) error {
	for _, field := range cmd.Fields {
		if field.Type != FieldFile || params.Get(field.Name) == "" {
			continue
		}
		content, err := ReadFile(params.Get(field.Name))
		if err != nil {
			return pkgerrors.ValidationError(field.Name, err.Error())
		}
		params.Set(field.Name, content)
	}
	return cmd.Run(ctx, a, params)
}

// Background runs fn on its own goroutine so the prompt stays usable while a
// judge call is outstanding.
func (a *App) Background(ctx context.Context, name string, fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if a.JudgeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.JudgeTimeout)
			defer cancel()
		}
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "background command panicked", zap.String("command", name), zap.Any("panic", r))
			}
		}()
		fn(ctx)
	}()
}

// Wait blocks until background commands have finished.
func (a *App) Wait() {
	a.wg.Wait()
}
