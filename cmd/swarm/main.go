package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/swarmfield/internal/agent"
	"github.com/nidhogg/swarmfield/internal/api"
	"github.com/nidhogg/swarmfield/internal/checkpoint"
	"github.com/nidhogg/swarmfield/internal/config"
	"github.com/nidhogg/swarmfield/internal/memory"
	"github.com/nidhogg/swarmfield/internal/orchestrator"
	"github.com/nidhogg/swarmfield/internal/provider"
	"github.com/nidhogg/swarmfield/internal/store"
	"github.com/nidhogg/swarmfield/internal/swarm"
	"github.com/nidhogg/swarmfield/internal/websearch"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "", "config file path (defaults to $CONFIG_PATH or configs/swarm.json)")
	agents := flag.Int("agents", 3, "number of swarm agents")
	iterations := flag.Int("iterations", 3, "swarm iterations to run")
	interactive := flag.Bool("interactive", false, "run a single conversational agent instead of the swarm")
	thread := flag.String("thread", "interactive", "thread id for interactive mode")
	listen := flag.String("listen", "", "API listen address (overrides the configured port)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Swarmfield...")

	path := *cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/swarm.json"
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", path), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", path))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Environment store
	st, err := store.New(ctx, cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	defer st.Close()
	if err := st.Migrate(ctx, "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	env := swarm.NewEnvironment(st.Pool(), logger)
	memories := memory.NewIndex(st.Pool(), logger)

	// Provider router
	router := provider.NewRouter(logger)
	var fallbacks []string
	defaultModel := ""
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		fallbacks = append(fallbacks, pc.ID)
		if defaultModel == "" {
			defaultModel = pc.Model
		}
	}
	if len(fallbacks) == 0 {
		logger.Fatal("no usable provider configured")
	}
	router.SetFallbacks(fallbacks)

	searcher := websearch.NewClient(cfg.Search.Endpoint, cfg.Search.APIKey, logger)

	// Checkpoints: Redis when available, process memory otherwise.
	var checkpoints agent.CheckpointStore
	redisCp, err := checkpoint.NewRedisStore(cfg.Database.Redis.URL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, checkpoints held in memory", zap.Error(err))
		checkpoints = checkpoint.NewMemoryStore()
	} else {
		checkpoints = redisCp
		defer redisCp.Close()
	}

	var events *orchestrator.EventLog
	if el, elErr := orchestrator.NewEventLog(cfg.Database.Redis.URL, logger); elErr != nil {
		logger.Warn("Redis unavailable, running without event log", zap.Error(elErr))
	} else {
		events = el
		defer el.Close()
	}

	factory := func(threadID string) *agent.Loop {
		registry := agent.NewToolRegistry()
		agent.RegisterSwarmTools(registry, threadID, env, memories, searcher)
		oracle := agent.NewRouterOracle(router, threadID, defaultModel, registry.Definitions(), logger)
		return agent.NewLoop(threadID, oracle, registry, env, memories, checkpoints, logger)
	}

	// Observation API
	handler := api.NewHandler(env, events, logger)
	addr := *listen
	if addr == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 8080
		}
		addr = fmt.Sprintf(":%d", port)
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: handler.Router(),
	}
	go func() {
		logger.Info("Swarmfield API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()
	defer srv.Shutdown(context.Background())

	maxCycles := cfg.Swarm.MaxCycles
	if maxCycles <= 0 {
		maxCycles = 10
	}

	if *interactive {
		runInteractive(ctx, cfg, env, factory, *thread, maxCycles, logger)
		return
	}

	agentIDs := make([]string, *agents)
	for i := range agentIDs {
		agentIDs[i] = fmt.Sprintf("agent_%d", i+1)
	}

	sw := orchestrator.NewSwarm(env, func(threadID string) orchestrator.Runner {
		return factory(threadID)
	}, agentIDs, events, orchestrator.Config{
		DecayRate: cfg.Swarm.DecayRate,
		MaxCycles: maxCycles,
	}, logger)

	if len(cfg.Swarm.SeedTasks) > 0 {
		if err := sw.SeedTasks(ctx, cfg.Swarm.SeedTasks); err != nil {
			logger.Fatal("seeding tasks failed", zap.Error(err))
		}
		logger.Info("Seeded tasks", zap.Int("count", len(cfg.Swarm.SeedTasks)))
	}

	if err := sw.Run(ctx, *iterations); err != nil {
		logger.Warn("swarm stopped early", zap.Error(err))
	}
	logger.Info("Swarm run finished", zap.Int("iterations", *iterations))
}

// runInteractive drives a single resumable agent from stdin. Pheromones
// evaporate on a wall-clock ticker instead of per swarm iteration.
func runInteractive(ctx context.Context, cfg *config.Config, env *swarm.Environment, factory func(string) *agent.Loop, thread string, maxCycles int, logger *zap.Logger) {
	interval := time.Duration(cfg.Swarm.EvaporationIntervalMS) * time.Millisecond
	ticker := orchestrator.NewEvaporationTicker(env, interval, cfg.Swarm.DecayRate, logger)
	ticker.Start()
	defer ticker.Stop()

	fmt.Println("Swarmfield interactive agent")
	fmt.Printf("Thread: %s\n", thread)
	fmt.Println("Type a goal, or 'exit' to leave.")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}

		loop := factory(thread)
		if err := loop.Begin(ctx, input); err != nil {
			fmt.Fprintf(os.Stderr, "begin failed: %v\n", err)
			continue
		}
		if err := loop.Run(ctx, maxCycles); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			continue
		}
		if cp := loop.Checkpoint(); cp != nil && cp.Plan != "" {
			fmt.Printf("\033[36m[%s]\033[0m %s\n", thread, cp.Plan)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
