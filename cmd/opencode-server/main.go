// Package main is the entry point for the opencode-server agent orchestrator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/opencode/internal/config"
	"github.com/opencode-ai/opencode/internal/eventbus"
	"github.com/opencode-ai/opencode/internal/logging"
	"github.com/opencode-ai/opencode/internal/permission"
	"github.com/opencode-ai/opencode/internal/provider"
	"github.com/opencode-ai/opencode/internal/scheduler"
	"github.com/opencode-ai/opencode/internal/server"
	"github.com/opencode-ai/opencode/internal/store"
	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/internal/turnrunner"
	"github.com/opencode-ai/opencode/internal/turnsetup"
	"github.com/opencode-ai/opencode/pkg/types"
)

const defaultSystemPrompt = `You are a coding agent with access to sandboxed file, search, and ` +
	`web-fetch tools scoped to one workspace directory. Use tools to look before you write, ` +
	`and prefer the smallest edit that satisfies the request.`

var (
	addr        string
	dbPath      string
	workDir     string
	logLevel    string
	permissive  bool
	maxSubagent int
)

func main() {
	root := &cobra.Command{
		Use:   "opencode-server",
		Short: "Runs the opencode agent orchestrator HTTP server",
		RunE:  run,
	}
	root.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	root.Flags().StringVar(&dbPath, "db", "opencode.db", "path to the SQLite database file")
	root.Flags().StringVar(&workDir, "workdir", "", "sandboxed workspace root (defaults to the current directory)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().BoolVar(&permissive, "permissive", false, "default every tool's permission policy to allow instead of ask")
	root.Flags().IntVar(&maxSubagent, "max-subagent-depth", 2, "maximum nested spawn_subagent recursion depth")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(logLevel),
		Output: os.Stderr,
		Pretty: true,
	})
	defer logging.Close()

	root := workDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}

	fileCfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags explicitly passed on the command line win over the config file;
	// otherwise the config file's Store/Sandbox/Turn sections apply.
	if !cmd.Flags().Changed("db") && fileCfg.Store.Path != "" {
		dbPath = fileCfg.Store.Path
	}
	if !cmd.Flags().Changed("workdir") && fileCfg.Sandbox.AllowedRoot != "" {
		root, err = filepath.Abs(fileCfg.Sandbox.AllowedRoot)
		if err != nil {
			return fmt.Errorf("resolve configured sandbox root: %w", err)
		}
	}
	if !cmd.Flags().Changed("max-subagent-depth") && fileCfg.Turn.SubagentMaxDepth > 0 {
		maxSubagent = fileCfg.Turn.SubagentMaxDepth
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bus := eventbus.New(st)

	defaultPolicy := types.PolicyAsk
	if permissive {
		defaultPolicy = types.PolicyAllow
	}
	toolOverrides := map[string]types.Policy{}
	if fileCfg.Permission != nil {
		if fileCfg.Permission.Default != "" && !cmd.Flags().Changed("permissive") {
			defaultPolicy = fileCfg.Permission.Default
		}
		toolOverrides = fileCfg.Permission.ToolOverrides
	}
	gate := permission.New(st,
		func(toolName string) bool { return true },
		func(toolName string) types.Policy {
			if p, ok := toolOverrides[toolName]; ok {
				return p
			}
			return defaultPolicy
		},
	)

	llmProvider, err := selectProvider(cmd.Context(), fileCfg)
	if err != nil {
		return fmt.Errorf("select LLM provider: %w", err)
	}
	model := turnrunner.NewModel(llmProvider.ChatModel())

	maxIterations := 0
	subagentMaxIterations := 0
	if fileCfg.Turn.MaxIterations > 0 {
		maxIterations = fileCfg.Turn.MaxIterations
	}
	if fileCfg.Turn.SubagentMaxIterations > 0 {
		subagentMaxIterations = fileCfg.Turn.SubagentMaxIterations
	}

	cfg := turnrunner.Config{
		MaxIterations:         maxIterations,
		SubagentMaxIterations: subagentMaxIterations,
		SubagentMaxDepth:      maxSubagent,
		AllowedRoot:           root,
		SystemPrompt:          defaultSystemPrompt,
	}
	if fileCfg.Events.PermissionTimeoutSeconds > 0 {
		cfg.PermissionTimeout = time.Duration(fileCfg.Events.PermissionTimeoutSeconds) * time.Second
	}
	runner := turnrunner.New(st, bus, gate, model, cfg)

	registry := tool.NewDefaultRegistry(root, runner)

	sched := scheduler.New(st, bus,
		func(ctx context.Context, session *types.ChatSession, turn *types.Turn) (string, error) {
			history, err := turnsetup.BuildHistory(st, session.ID, cfg.SystemPrompt, turn.UserText)
			if err != nil {
				return "", err
			}
			return runner.Run(ctx, session, turn, registry, history)
		},
		func(ctx context.Context, userText string) (string, error) {
			return generateTitle(userText), nil
		},
	)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = addr
	srvCfg.AllowedRoot = root
	if fileCfg.Events.SSEHeartbeatSeconds > 0 {
		srvCfg.SSEHeartbeat = time.Duration(fileCfg.Events.SSEHeartbeatSeconds) * time.Second
	}
	srv := server.New(srvCfg, st, bus, gate, sched)

	logging.Info().Str("addr", addr).Str("workdir", root).Str("db", dbPath).Msg("starting opencode-server")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		logging.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// generateTitle derives a short session title from the first user message
// without a model round trip: the first line, capped to a few words.
func generateTitle(userText string) string {
	const maxWords = 8
	words := make([]byte, 0, len(userText))
	wordCount := 0
	for i := 0; i < len(userText); i++ {
		c := userText[i]
		if c == '\n' {
			break
		}
		if c == ' ' {
			wordCount++
			if wordCount >= maxWords {
				break
			}
		}
		words = append(words, c)
	}
	title := string(words)
	if title == "" {
		return "New session"
	}
	return title
}

// selectProvider builds the real OpenAI adapter when an API key is
// configured (via the "openai" provider config section or the
// OPENAI_API_KEY environment variable), and falls back to the offline
// Lorem provider otherwise so the server always boots without network
// access or secrets configured.
func selectProvider(ctx context.Context, fileCfg *types.Config) (provider.Provider, error) {
	openaiCfg := fileCfg.Provider["openai"]
	if openaiCfg.APIKey == "" {
		openaiCfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if openaiCfg.APIKey == "" {
		logging.Info().Msg("OPENAI_API_KEY not configured, using offline Lorem provider")
		return provider.NewLoremProvider(), nil
	}

	p, err := provider.NewOpenAIProvider(ctx, &provider.OpenAIConfig{
		APIKey:  openaiCfg.APIKey,
		BaseURL: openaiCfg.BaseURL,
		Model:   openaiCfg.Model,
	})
	if err != nil {
		return nil, err
	}
	logging.Info().Str("model", openaiCfg.Model).Msg("using OpenAI provider")
	return p, nil
}
