package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stingersec/stinger/internal/config"
	"github.com/stingersec/stinger/internal/logger"
	"github.com/stingersec/stinger/internal/observability"
	"github.com/stingersec/stinger/internal/tracing"
	"github.com/stingersec/stinger/pkg/agent"
	"github.com/stingersec/stinger/pkg/coretools"
	"github.com/stingersec/stinger/pkg/cost"
	"github.com/stingersec/stinger/pkg/events"
	"github.com/stingersec/stinger/pkg/inference"
	"github.com/stingersec/stinger/pkg/memory"
	"github.com/stingersec/stinger/pkg/queue"
	"github.com/stingersec/stinger/pkg/run"
	"github.com/stingersec/stinger/pkg/session"
	"github.com/stingersec/stinger/pkg/tool"
)

// Runtime holds every assembled component of a running stinger process.
type Runtime struct {
	Config    *config.Config
	Logger    *logger.Logger
	Agents    *agent.Registry
	Tools     *tool.Registry
	Emitter   *events.Emitter
	Ledger    *cost.Ledger
	Memory    *memory.Store
	Lanes     *queue.Queue
	Manager   *session.Manager
	Scheduler *session.Scheduler

	server *http.Server
	wsSink *events.WebSocketSink
}

// buildRuntime assembles the full runtime from the config file.
func buildRuntime() (*Runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(cfg.LoggerConfig(true, true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := tracing.InitOpenTelemetry("stinger"); err != nil {
		lg.Close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	observability.EnsureRegistered()

	rt := &Runtime{Config: cfg, Logger: lg}
	if err := rt.assemble(); err != nil {
		rt.Shutdown(context.Background())
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) assemble() error {
	cfg := rt.Config

	if err := ensureAgentsDir(cfg.AgentsDir); err != nil {
		return err
	}
	agents, err := agent.NewLoader(cfg.AgentsDir).Load()
	if err != nil {
		return err
	}
	rt.Agents = agents

	rt.Tools = tool.NewRegistry()
	if err := coretools.Register(rt.Tools, coretools.Options{
		WorkspaceRoot:  cfg.WorkspacePath,
		BrowserCDPURL:  cfg.Browser.CDPURL,
		DisableBrowser: cfg.Browser.Disabled,
	}); err != nil {
		return err
	}

	rt.Emitter = events.NewEmitter()
	rt.Ledger = cost.NewLedger(cost.DefaultRateTable())

	factory := inference.NewFactory(inference.Credentials{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
	})

	var recall run.Querier
	var recorder session.Recorder
	if cfg.Memory.Enabled {
		store, err := memory.NewStore(cfg.Memory.Path, buildEmbedder(cfg))
		if err != nil {
			return fmt.Errorf("failed to open memory store: %w", err)
		}
		rt.Memory = store
		recall = store
		recorder = store
	}

	engine, err := run.NewEngine(agents, rt.Tools, factory, rt.Ledger, rt.Emitter)
	if err != nil {
		return err
	}
	controller := run.NewController(engine, rt.Ledger, rt.Emitter, recall)

	archive, err := session.NewStore(filepath.Join(cfg.DataDir, "sessions"))
	if err != nil {
		return err
	}

	rt.Lanes = queue.New()
	rt.Manager = session.NewManager(agents, controller, rt.Lanes, archive, recorder, rt.Emitter)
	rt.Scheduler = session.NewScheduler(rt.Manager)

	if cfg.Server.Enabled {
		rt.startServer()
	}
	return nil
}

func buildEmbedder(cfg *config.Config) memory.Embedder {
	if cfg.Memory.Embedder == "openai" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return memory.NewOpenAIEmbedder(key, cfg.Memory.EmbeddingModel)
		}
		log.Warn().Msg("OPENAI_API_KEY not set, falling back to local embedder")
	}
	return memory.NewLocalEmbedder(0)
}

// ensureAgentsDir creates the agents directory and seeds a starter agent
// pair on first run so the runtime is usable out of the box.
func ensureAgentsDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create agents directory: %w", err)
	}

	seeds := map[string]string{
		"recon.json": `{
  "id": "recon",
  "name": "Recon Agent",
  "model": "claude-3-5-sonnet-latest",
  "instructions": "You are a network reconnaissance specialist. Enumerate the authorized target with the available tools, record every finding, and hand off to the exploit agent once the attack surface is mapped.",
  "tools": ["generic_linux_command", "http_request", "web_snapshot"],
  "handoffs": ["exploit"]
}
`,
		"exploit.json": `{
  "id": "exploit",
  "name": "Exploit Agent",
  "model": "claude-3-5-sonnet-latest",
  "instructions": "You validate and exploit weaknesses found during reconnaissance, strictly within the authorized scope. Summarize evidence for the report when done.",
  "tools": ["generic_linux_command", "http_request"],
  "handoffs": ["recon"]
}
`,
	}
	for name, body := range seeds {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			return fmt.Errorf("failed to seed agent file %s: %w", name, err)
		}
	}
	log.Info().Str("dir", dir).Msg("Seeded starter agents")
	return nil
}

func (rt *Runtime) startServer() {
	rt.wsSink = events.NewWebSocketSink(rt.Emitter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.Handle("/events", rt.wsSink)

	addr := fmt.Sprintf("%s:%d", rt.Config.Server.Host, rt.Config.Server.Port)
	rt.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := rt.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()
}

// Shutdown tears the runtime down in dependency order.
func (rt *Runtime) Shutdown(ctx context.Context) {
	if rt.Scheduler != nil {
		rt.Scheduler.Stop()
	}
	if rt.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rt.server.Shutdown(shutdownCtx)
		cancel()
	}
	if rt.wsSink != nil {
		rt.wsSink.Close()
	}
	if rt.Lanes != nil {
		rt.Lanes.Close()
	}
	if rt.Memory != nil {
		rt.Memory.Close()
	}
	tracing.ShutdownOpenTelemetry(ctx)
	if rt.Logger != nil {
		rt.Logger.Close()
	}
}
