package command

import (
	"context"
	"sort"
	"strings"

	adminmodel "codearena/internal/admin/model"
	problemmodel "codearena/internal/problem/model"
	submitmodel "codearena/internal/submit/model"
	usermodel "codearena/internal/user/model"
	pkgerrors "codearena/pkg/errors"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service: "auth",
			Action:  "login",
			Usage:   "auth login [token=<jwt>]",
			Fields: []Field{
				{Name: "token", Aliases: []string{"access_token"}, Prompt: "token", Type: FieldString},
			},
			Run: login,
		},
		{Service: "auth", Action: "logout", Usage: "auth logout", Run: logout},
		{Service: "auth", Action: "whoami", Usage: "auth whoami", Run: whoami},
		{Service: "auth", Action: "refresh", Usage: "auth refresh", Run: refresh},
		{
			Service: "problem",
			Action:  "list",
			Usage:   "problem list [difficulty=Easy|Medium|Hard|All]",
			Fields: []Field{
				{Name: "difficulty", Prompt: "difficulty", Type: FieldString},
			},
			Run: listProblems,
		},
		{
			Service: "problem",
			Action:  "show",
			Usage:   "problem show id=<id>",
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem_id"}, Prompt: "problem_id", Type: FieldString, Required: true},
			},
			Run: showProblem,
		},
		{
			Service: "ws",
			Action:  "open",
			Usage:   "ws open id=<problem id>",
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem_id"}, Prompt: "problem_id", Type: FieldString, Required: true},
			},
			Run: openWorkspace,
		},
		{
			Service: "ws",
			Action:  "lang",
			Usage:   "ws lang name=python|javascript|cpp|java",
			Fields: []Field{
				{Name: "name", Aliases: []string{"language"}, Prompt: "language", Type: FieldString, Required: true},
			},
			Run: selectLanguage,
		},
		{
			Service: "ws",
			Action:  "code",
			Usage:   "ws code file=<path> | ws code text=<source>",
			Fields: []Field{
				{Name: "file", Aliases: []string{"source_file"}, Prompt: "source file", Type: FieldFile},
				{Name: "text", Aliases: []string{"source_code"}, Prompt: "source", Type: FieldString},
			},
			Run: setCode,
		},
		{
			Service: "ws",
			Action:  "tab",
			Usage:   "ws tab name=description|results",
			Fields: []Field{
				{Name: "name", Prompt: "tab", Type: FieldString, Required: true},
			},
			Run: selectTab,
		},
		{Service: "ws", Action: "show", Usage: "ws show", Run: showWorkspace},
		{Service: "ws", Action: "run", Usage: "ws run", Run: runCode},
		{Service: "ws", Action: "submit", Usage: "ws submit", Run: submitCode},
		{Service: "ws", Action: "close", Usage: "ws close", Run: closeWorkspace},
		{Service: "admin", Action: "stats", Usage: "admin stats", Run: adminStats},
		{Service: "admin", Action: "users", Usage: "admin users", Run: adminUsers},
		{
			Service: "admin",
			Action:  "create",
			Usage:   "admin create title=<title> difficulty=<level> [slug=] [tags=a,b] [description=|description_file=]",
			Fields: []Field{
				{Name: "title", Prompt: "title", Type: FieldString, Required: true},
				{Name: "difficulty", Prompt: "difficulty (Easy/Medium/Hard)", Type: FieldString, Required: true},
				{Name: "slug", Prompt: "slug", Type: FieldString},
				{Name: "tags", Prompt: "tags (comma separated)", Type: FieldString},
				{Name: "description", Prompt: "description", Type: FieldString},
				{Name: "description_file", Prompt: "description file", Type: FieldFile},
			},
			Run: adminCreate,
		},
		{
			Service: "admin",
			Action:  "delete",
			Usage:   "admin delete id=<problem id>",
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem_id"}, Prompt: "problem_id", Type: FieldString, Required: true},
			},
			Run: adminDelete,
		},
	}

	registry := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		registry[cmd.Key()] = cmd
	}
	return registry
}

// Sorted returns the registry ordered by key, for help and completion.
func Sorted(registry map[string]Command) []Command {
	out := make([]Command, 0, len(registry))
	for _, cmd := range registry {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func login(ctx context.Context, app *App, params Params) error {
	token := strings.TrimSpace(params.Get("token"))
	if app.OIDC != nil && token == "" {
		if err := app.Session.SignIn(ctx); err != nil {
			return err
		}
		app.View.Printf("complete sign-in in your browser; the session updates when it finishes")
		return nil
	}
	if app.Manual == nil {
		return pkgerrors.Newf(pkgerrors.IdentityProviderFailed, "token login is only available in manual identity mode")
	}
	if token == "" {
		return pkgerrors.ValidationError("token", "must not be empty")
	}
	if err := app.Manual.Login(token); err != nil {
		return err
	}
	// Reconciliation runs in the background; wait so the next prompt sees it.
	app.Session.Wait()
	return nil
}

func logout(ctx context.Context, app *App, _ Params) error {
	if err := app.Session.SignOut(ctx); err != nil {
		app.View.Printf("warning: identity provider sign-out failed: %v", err)
	}
	return nil
}

func whoami(_ context.Context, app *App, _ Params) error {
	app.View.Session(app.Session.State())
	return nil
}

func refresh(ctx context.Context, app *App, _ Params) error {
	if app.OIDC == nil {
		return pkgerrors.Newf(pkgerrors.IdentityProviderFailed, "refresh is only available in oidc identity mode")
	}
	if err := app.OIDC.Refresh(ctx); err != nil {
		return err
	}
	app.Session.Wait()
	return nil
}

func listProblems(ctx context.Context, app *App, params Params) error {
	problems, err := app.Catalog.List(ctx)
	if err != nil {
		return err
	}
	filtered, err := problemmodel.Filter(problems, params.Get("difficulty"))
	if err != nil {
		return err
	}
	signedIn := app.Session.State().Phase == usermodel.SessionAuthenticated
	app.View.Problems(filtered, signedIn)
	return nil
}

func showProblem(ctx context.Context, app *App, params Params) error {
	p, err := app.Catalog.Get(ctx, params.Get("id"))
	if err != nil {
		return err
	}
	app.View.Problem(p)
	return nil
}

func openWorkspace(ctx context.Context, app *App, params Params) error {
	p, err := app.Catalog.Get(ctx, params.Get("id"))
	if err != nil {
		return err
	}
	ws, err := app.Workspace.Open(p.ID.String())
	if err != nil {
		return err
	}
	app.View.Problem(p)
	app.View.Workspace(ws)
	return nil
}

func selectLanguage(_ context.Context, app *App, params Params) error {
	lang, err := submitmodel.ParseLanguage(params.Get("name"))
	if err != nil {
		return err
	}
	if err := app.Workspace.SelectLanguage(lang); err != nil {
		return err
	}
	return showWorkspace(context.Background(), app, nil)
}

func setCode(_ context.Context, app *App, params Params) error {
	code := params.Get("file")
	if code == "" {
		code = params.Get("text")
	}
	if !params.Has("file") && !params.Has("text") {
		return pkgerrors.ValidationError("code", "use file=<path> or text=<source>")
	}
	return app.Workspace.SetCode(code)
}

func selectTab(_ context.Context, app *App, params Params) error {
	var tab submitmodel.Tab
	switch strings.ToLower(strings.TrimSpace(params.Get("name"))) {
	case "description", "desc":
		tab = submitmodel.TabDescription
	case "results", "result":
		tab = submitmodel.TabResults
	default:
		return pkgerrors.ValidationError("tab", "must be description or results")
	}
	if err := app.Workspace.SelectTab(tab); err != nil {
		return err
	}
	return showWorkspace(context.Background(), app, nil)
}

func showWorkspace(_ context.Context, app *App, _ Params) error {
	ws, ok := app.Workspace.Snapshot()
	if !ok {
		return pkgerrors.New(pkgerrors.NoActiveWorkspace)
	}
	app.View.Workspace(ws)
	return nil
}

func runCode(ctx context.Context, app *App, _ Params) error {
	if _, ok := app.Workspace.Snapshot(); !ok {
		return pkgerrors.New(pkgerrors.NoActiveWorkspace)
	}
	app.Background(ctx, "run", func(ctx context.Context) {
		res, err := app.Workspace.Run(ctx)
		if err != nil {
			app.View.Error(err)
			return
		}
		app.View.Run(res)
	})
	return nil
}

func submitCode(ctx context.Context, app *App, _ Params) error {
	if _, ok := app.Workspace.Snapshot(); !ok {
		return pkgerrors.New(pkgerrors.NoActiveWorkspace)
	}
	app.Background(ctx, "submit", func(ctx context.Context) {
		res, err := app.Workspace.Submit(ctx)
		if err != nil {
			app.View.Error(err)
			return
		}
		app.View.Submission(res)
	})
	return nil
}

func closeWorkspace(_ context.Context, app *App, _ Params) error {
	app.Workspace.Close()
	return nil
}

func adminStats(ctx context.Context, app *App, _ Params) error {
	stats, err := app.Admin.Stats(ctx)
	if err != nil {
		return err
	}
	app.View.AdminStats(stats)
	return nil
}

func adminUsers(ctx context.Context, app *App, _ Params) error {
	users, err := app.Admin.Users(ctx)
	if err != nil {
		return err
	}
	app.View.Users(users)
	return nil
}

func adminCreate(ctx context.Context, app *App, params Params) error {
	description := params.Get("description_file")
	if description == "" {
		description = params.Get("description")
	}
	created, err := app.Admin.CreateProblem(ctx, adminmodel.ProblemDraft{
		Title:       params.Get("title"),
		Slug:        params.Get("slug"),
		Description: description,
		Difficulty:  params.Get("difficulty"),
		Tags:        params.Get("tags"),
	})
	if err != nil {
		return err
	}
	app.View.Printf("created problem %s (%s)", created.ID, created.Slug)
	return nil
}

func adminDelete(ctx context.Context, app *App, params Params) error {
	id := params.Get("id")
	if err := app.Admin.DeleteProblem(ctx, id); err != nil {
		return err
	}
	app.View.Printf("deleted problem %s", id)
	return nil
}
