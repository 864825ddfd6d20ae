package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"krusty/internal/agent"
	"krusty/internal/chat"
	"krusty/internal/client"
	"krusty/internal/config"
	"krusty/internal/engine"
	"krusty/internal/logging"
	"krusty/internal/permission"
	"krusty/internal/tools"
)

const systemInstruction = `You are Krusty, a coding agent working in the user's project
directory. Use the available tools to read, search, and change code,
and to run commands. Prefer small, verifiable steps. In plan mode,
investigate and build a task plan with the plan tools before switching
to build mode. When you are done, summarize what you changed.`

// app bundles everything one interactive session needs.
type app struct {
	cfg     *config.Config
	client  client.Client
	store   *chat.FileStore
	session *chat.Session
	loop    *engine.Loop
	sink    *engine.BufferedSink

	stdin   *bufio.Reader
	stdinMu sync.Mutex
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)
	defer logging.Close()

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	go a.render()

	if flagPrompt != "" {
		return a.runTurn(flagPrompt)
	}
	return a.repl()
}

// newApp wires the engine together for one session.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	c, err := client.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dataDir, err := config.DataDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data dir: %w", err)
	}
	store, err := chat.NewFileStore(dataDir)
	if err != nil {
		return nil, err
	}
	store.Prune(cfg.Session.MaxSessionAge, cfg.Session.MaxSessionCount)

	session, err := openSession(store, cfg, c)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		client:  c,
		store:   store,
		session: session,
		sink:    engine.NewBufferedSink(cfg.Context.SinkBuffer),
		stdin:   bufio.NewReader(os.Stdin),
	}

	retry := client.RetryConfig{
		MaxRetries: cfg.API.Retry.MaxRetries,
		RetryDelay: cfg.API.Retry.RetryDelay,
		MaxDelay:   cfg.API.Retry.MaxDelay,
	}

	explore := tools.NewExploreTool()
	registry := tools.DefaultRegistry(session, tools.Options{
		BashTimeout:     cfg.Tools.BashTimeout,
		BashGracePeriod: cfg.Tools.BashGracePeriod,
	}, explore)

	orch := agent.NewOrchestrator(c, session.WorkDir, cfg.SubAgent.MaxParallel, cfg.SubAgent.MaxTurns, retry)
	explore.SetSpawner(orch)

	gate := permission.NewGate()
	gate.SetPromptHandler(a.promptApproval)

	dispatcher := engine.NewDispatcher(registry, gate, session, a.sink, cfg.Context.ToolResultMaxChars)
	a.loop = engine.NewLoop(engine.LoopConfig{
		Client:        c,
		Store:         store,
		Session:       session,
		Dispatcher:    dispatcher,
		Sink:          a.sink,
		Retry:         retry,
		MaxIterations: cfg.Context.MaxIterations,
		StreamConfig: client.StreamConfig{
			SystemInstruction: systemInstruction,
			Tools:             registry.Declarations(),
			Effort:            cfg.Model.Effort,
		},
	})
	return a, nil
}

// openSession resumes a saved session or starts a fresh one in the
// current directory.
func openSession(store *chat.FileStore, cfg *config.Config, c client.Client) (*chat.Session, error) {
	if flagResume != "" {
		session, err := store.Load(flagResume)
		if err != nil {
			return nil, fmt.Errorf("cannot resume session: %w", err)
		}
		fmt.Printf("resumed session %s (%d turns)\n", session.ID, session.TurnCount())
		return session, nil
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	session := chat.NewSession(workDir)
	session.Provider = cfg.API.ActiveProvider
	session.Model = c.Model()
	session.Effort = cfg.Model.Effort
	if cfg.Permission.Mode == "autonomous" {
		session.SetPermissionMode(chat.Autonomous)
	}
	if flagPlan {
		session.SetWorkMode(chat.ModePlan)
	}
	if err := store.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (a *app) close() {
	a.sink.Close()
	if err := a.client.Close(); err != nil {
		logging.Warn("client close failed", "error", err)
	}
}

// repl reads user input until EOF or /quit.
func (a *app) repl() error {
	fmt.Printf("krusty %s | session %s | %s mode | type /help for commands\n",
		version, a.session.ID[:8], a.session.GetWorkMode())

	for {
		fmt.Print("\n> ")
		line, err := a.readLine()
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.handleCommand(line)
			if err != nil {
				fmt.Println("Error:", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := a.runTurn(line); err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("\n(turn interrupted)")
				continue
			}
			fmt.Println("\nError:", err)
		}
	}
}

// runTurn drives one turn with Ctrl-C cancelling the turn instead of
// the process. A second Ctrl-C within two seconds exits.
func (a *app) runTurn(input string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		var lastSig time.Time
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				if time.Since(lastSig) < 2*time.Second {
					os.Exit(130)
				}
				lastSig = time.Now()
				a.loop.Cancel()
			}
		}
	}()
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()

	return a.loop.RunTurn(context.Background(), input)
}

// handleCommand executes a slash command. Returns true to quit.
func (a *app) handleCommand(line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Println(`commands:
  /mode plan|build   switch work mode
  /plan              show the current plan
  /compact           compress history into a fresh session
  /quit              exit`)
		return false, nil

	case "/mode":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /mode plan|build")
		}
		mode := chat.WorkMode(fields[1])
		if mode != chat.ModePlan && mode != chat.ModeBuild {
			return false, fmt.Errorf("unknown mode %q", fields[1])
		}
		a.session.SetWorkMode(mode)
		fmt.Printf("now in %s mode\n", mode)
		return false, nil

	case "/plan":
		rendered := a.session.Plan.Render()
		if rendered == "" {
			rendered = "(plan is empty)"
		}
		fmt.Println(rendered)
		return false, nil

	case "/compact":
		return false, a.compact()

	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

// compact replaces the live session with a summarized one.
func (a *app) compact() error {
	fmt.Println("compressing session...")
	compressor := engine.NewCompressor(a.client, a.store)
	fresh, err := compressor.Compress(context.Background(), a.session)
	if err != nil {
		return err
	}

	// Rebuild the engine around the new session.
	cfg := a.cfg
	explore := tools.NewExploreTool()
	registry := tools.DefaultRegistry(fresh, tools.Options{
		BashTimeout:     cfg.Tools.BashTimeout,
		BashGracePeriod: cfg.Tools.BashGracePeriod,
	}, explore)
	retry := client.RetryConfig{
		MaxRetries: cfg.API.Retry.MaxRetries,
		RetryDelay: cfg.API.Retry.RetryDelay,
		MaxDelay:   cfg.API.Retry.MaxDelay,
	}
	orch := agent.NewOrchestrator(a.client, fresh.WorkDir, cfg.SubAgent.MaxParallel, cfg.SubAgent.MaxTurns, retry)
	explore.SetSpawner(orch)

	gate := permission.NewGate()
	gate.SetPromptHandler(a.promptApproval)

	dispatcher := engine.NewDispatcher(registry, gate, fresh, a.sink, cfg.Context.ToolResultMaxChars)
	a.loop = engine.NewLoop(engine.LoopConfig{
		Client:        a.client,
		Store:         a.store,
		Session:       fresh,
		Dispatcher:    dispatcher,
		Sink:          a.sink,
		Retry:         retry,
		MaxIterations: cfg.Context.MaxIterations,
		StreamConfig: client.StreamConfig{
			SystemInstruction: systemInstruction,
			Tools:             registry.Declarations(),
			Effort:            cfg.Model.Effort,
		},
	})
	a.session = fresh
	fmt.Printf("continuing in session %s\n", fresh.ID[:8])
	return nil
}

// render prints sink events to the terminal.
func (a *app) render() {
	for ev := range a.sink.Events() {
		switch ev.Kind {
		case engine.RenderText:
			fmt.Print(ev.Text)

		case engine.RenderThinking:
			// reasoning is logged, not shown
			logging.Debug("thinking", "text", ev.Text)

		case engine.RenderCallStatus:
			if ev.Call != nil && ev.Call.Status == chat.CallRunning {
				fmt.Printf("\n[%s] running...\n", ev.Call.Name)
			}

		case engine.RenderToolOutput:
			fmt.Print(ev.Text)

		case engine.RenderToolResult:
			if ev.Result == nil {
				continue
			}
			name := ""
			if ev.Call != nil {
				name = ev.Call.Name
			}
			if ev.Result.OK {
				fmt.Printf("[%s] ok\n", name)
			} else {
				fmt.Printf("[%s] error: %s\n", name, ev.Result.Error)
			}

		case engine.RenderNotice:
			fmt.Printf("\n(%s)\n", ev.Text)

		case engine.RenderTurnDone:
			if ev.Turn != nil && ev.Turn.Role == chat.RoleAssistant {
				fmt.Println()
			}
		}
	}
}

// promptApproval asks the user to approve a mutating tool call.
func (a *app) promptApproval(ctx context.Context, req *permission.Request) (permission.Decision, error) {
	fmt.Printf("\n--- approval required ---\n%s\n", req.Reason)
	if req.DiffPreview != "" {
		fmt.Println(req.DiffPreview)
	}
	fmt.Print("[y]es / [n]o / [a]lways for session / ne[v]er for session: ")

	line, err := a.readLine()
	if err != nil {
		return permission.DecisionDeny, err
	}
	if ctx.Err() != nil {
		return permission.DecisionDeny, ctx.Err()
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return permission.DecisionAllow, nil
	case "a", "always":
		return permission.DecisionAllowSession, nil
	case "v", "never":
		return permission.DecisionDenySession, nil
	default:
		return permission.DecisionDeny, nil
	}
}

// readLine reads one line from stdin. Serialized so the REPL and
// approval prompts never read concurrently.
func (a *app) readLine() (string, error) {
	a.stdinMu.Lock()
	defer a.stdinMu.Unlock()
	return a.stdin.ReadString('\n')
}
