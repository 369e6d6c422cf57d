package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"codearena/internal/cli/command"
	httpclient "codearena/internal/common/http"
	usermodel "codearena/internal/user/model"
	userrepo "codearena/internal/user/repository"
	"codearena/pkg/utils/contextkey"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/google/uuid"
)

const basePrompt = "codearena"

// PromptFunc asks the user for one missing value.
type PromptFunc func(prompt string) (string, error)

// Session holds REPL state.
type Session struct {
	app         *command.App
	clients     []*httpclient.Client
	tokens      userrepo.CredentialReader
	commands    map[string]command.Command
	historyFile string
}

// New builds a REPL. `set base` retargets every client; the first one is
// reported by `show config`.
func New(app *command.App, tokens userrepo.CredentialReader, commands map[string]command.Command, historyFile string, clients ...*httpclient.Client) *Session {
	return &Session{
		app:         app,
		clients:     clients,
		tokens:      tokens,
		commands:    commands,
		historyFile: historyFile,
	}
}

// Run reads lines until exit, EOF or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.prompt(),
		HistoryFile:       s.historyFile,
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// Async output (session changes, judge results) must redraw the prompt.
	s.app.View.SetOutput(rl.Stdout())
	unsubscribe := s.app.Session.Subscribe(func(state usermodel.SessionState) {
		s.app.View.Session(state)
	})
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	prompt := func(p string) (string, error) {
		rl.SetPrompt(p + ": ")
		defer rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		if err != nil {
			return "", fmt.Errorf("read input failed: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input failed: %w", err)
		}
		if s.Handle(ctx, line, prompt) {
			s.printLine("bye")
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}

// Handle executes one input line and reports whether the user asked to quit.
func (s *Session) Handle(ctx context.Context, line string, prompt PromptFunc) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if quit, handled := s.handleSystemCommand(line); handled {
		return quit
	}
	ctx = context.WithValue(ctx, contextkey.TraceID, uuid.NewString())
	if err := s.handleCommand(ctx, line, prompt); err != nil {
		s.app.View.Error(err)
	}
	return false
}

func (s *Session) handleSystemCommand(line string) (quit bool, handled bool) {
	switch line {
	case "exit", "quit":
		return true, true
	case "help":
		s.printHelp()
		return false, true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return false, true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return false, true
	}
	return false, false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base <url>")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8000")
			return
		}
		for _, client := range s.clients {
			client.SetBaseURL(parts[1])
		}
		// Cached lists belong to the old backend.
		s.app.Catalog.Invalidate()
		s.printLine("base set to %s", parts[1])
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		token := s.tokens.Credential()
		if token == "" {
			s.printLine("token: <empty>")
			return
		}
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s", token)
	case "config":
		if len(s.clients) > 0 {
			s.printLine("baseURL: %s", s.clients[0].BaseURL())
		}
	case "session":
		s.app.View.Session(s.app.Session.State())
	default:
		s.printLine("usage: show token|config|session")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string, prompt PromptFunc) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params, err := command.ParseArgs(cmd, tokens[2:])
	if err != nil {
		return err
	}
	if err := s.promptMissing(cmd, params, prompt); err != nil {
		return err
	}
	return s.app.Execute(ctx, cmd, params)
}

func (s *Session) promptMissing(cmd command.Command, params command.Params, prompt PromptFunc) error {
	for _, field := range command.Missing(cmd, params) {
		value, err := prompt(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

// prompt names the open problem, if any.
func (s *Session) prompt() string {
	ws, ok := s.app.Workspace.Snapshot()
	if !ok {
		return basePrompt + "> "
	}
	return fmt.Sprintf("%s[%s]> ", basePrompt, ws.Key.ProblemID)
}

func (s *Session) completer() *readline.PrefixCompleter {
	byService := make(map[string][]readline.PrefixCompleterInterface)
	var services []string
	for _, cmd := range command.Sorted(s.commands) {
		if _, ok := byService[cmd.Service]; !ok {
			services = append(services, cmd.Service)
		}
		byService[cmd.Service] = append(byService[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("set", readline.PcItem("base")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config"), readline.PcItem("session")),
	}
	for _, service := range services {
		items = append(items, readline.PcItem(service, byService[service]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base | show token|config|session")
	s.printLine("commands:")
	for _, cmd := range command.Sorted(s.commands) {
		s.printLine("  %s", cmd.Usage)
	}
	s.printLine("examples:")
	s.printLine("  auth login token=eyJhbGciOi...")
	s.printLine("  problem list difficulty=Medium")
	s.printLine("  ws open 1")
	s.printLine("  ws code file=./solution.py")
	s.printLine("  ws submit")
}

func (s *Session) printLine(format string, args ...interface{}) {
	s.app.View.Printf(format, args...)
}
