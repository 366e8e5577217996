package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/avi3tal/flowscope/internal/client"
	"github.com/avi3tal/flowscope/internal/config"
	"github.com/avi3tal/flowscope/internal/graph"
	"github.com/avi3tal/flowscope/internal/log"
	"github.com/avi3tal/flowscope/internal/snapshots"
	"github.com/avi3tal/flowscope/internal/view"
	"github.com/avi3tal/flowscope/pkg/console"
)

// progress prints one line per applied snapshot.
type progress struct{}

func (progress) OnUpdate(v *view.ExecutionView) {
	s := v.Summary()
	fmt.Printf("  %s: %d/%d done, %d running, %d failed\n", v.Status, s.Success+s.Failed, s.Total, s.Running, s.Failed)
}

func (progress) OnComplete(v *view.ExecutionView) {
	fmt.Printf("  execution %s finished: %s\n", v.ExecutionID, v.Status)
}

// Runs a workflow on a live service and follows it to completion.
//
//	go run ./cmd/examples/console -workflow order_pipeline -input '{"order_id": 42}'
func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	baseURL := flag.String("url", "", "service base URL (overrides config)")
	workflow := flag.String("workflow", "", "workflow to run; lists workflows when empty")
	input := flag.String("input", "{}", "execution input JSON")
	createName := flag.String("create", "", "create a workflow with this name before running")
	definition := flag.String("definition", "", "workflow definition file used with -create")
	flag.Parse()

	cfg := loadConfig(*configPath)
	if *baseURL != "" {
		cfg.Server.BaseURL = *baseURL
	}
	if err := log.InitLogger(cfg.Log.Level); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()
	logger := log.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.NewHTTPClient(cfg.Server.BaseURL,
		append(cfg.ClientOptions(), client.WithLogger(logger.Named("client")))...)
	if err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}

	session := console.New(c,
		console.WithLogger(logger),
		console.WithCallback(progress{}),
		console.WithSnapshotStore(snapshots.NewMemoryStore(snapshots.DefaultCapacity)),
		console.WithLayoutOptions(cfg.LayoutOptions()...),
		console.WithPollerOptions(cfg.PollerOptions()...),
	)
	defer session.Close()

	if h, err := session.Health(ctx); err != nil {
		logger.Warn("service health check failed", zap.Error(err))
	} else {
		logger.Info("service reachable", zap.String("status", h.Status), zap.Int("active_executions", h.ActiveExecutions))
	}

	if *createName != "" {
		text, err := os.ReadFile(*definition)
		if err != nil {
			logger.Fatal("failed to read definition", zap.String("file", *definition), zap.Error(err))
		}
		summary, err := session.Create(ctx, *createName, string(text))
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %s\n", client.DetailOf(err))
			os.Exit(1)
		}
		fmt.Printf("created workflow %s (%d nodes, %d edges)\n", summary.Name, summary.NodeCount, summary.EdgeCount)
		if *workflow == "" {
			*workflow = summary.Name
		}
	}

	if *workflow == "" {
		if err := session.Refresh(ctx); err != nil {
			logger.Fatal("failed to list workflows", zap.Error(err))
		}
		fmt.Println("Workflows:")
		for _, wf := range session.Workflows() {
			fmt.Printf("  %-24s %d nodes, %d edges\n", wf.Name, wf.NodeCount, wf.EdgeCount)
		}
		return
	}

	if session.Selected() != *workflow || session.Workflow() == nil {
		if err := session.Select(ctx, *workflow); err != nil {
			logger.Fatal("failed to load workflow", zap.String("workflow", *workflow), zap.Error(err))
		}
	}
	if err := graph.Render(os.Stdout, session.Layout(), nil); err != nil {
		logger.Fatal("failed to render layout", zap.Error(err))
	}
	for _, issue := range session.Diagnostics() {
		fmt.Printf("  warning: %v\n", issue)
	}

	snap, err := session.Run(ctx, *input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %s\n", client.DetailOf(err))
		os.Exit(1)
	}
	fmt.Printf("\nexecution %s started (%s)\n", snap.ExecutionID, snap.Status)

	if err := session.Wait(ctx); err != nil {
		session.Cancel()
		logger.Warn("stopped waiting for execution", zap.Error(err))
	}

	fmt.Println()
	if err := view.Render(os.Stdout, session.View()); err != nil {
		logger.Fatal("failed to render execution", zap.Error(err))
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		cfg := config.Default()
		return &cfg
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
