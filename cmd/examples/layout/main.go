package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/avi3tal/flowscope/internal/config"
	"github.com/avi3tal/flowscope/internal/graph"
	"github.com/avi3tal/flowscope/internal/log"
	"github.com/avi3tal/flowscope/internal/types"
	"github.com/avi3tal/flowscope/internal/xjson"
)

// Lays out a workflow file offline and prints the result.
//
//	go run ./cmd/examples/layout -file cmd/examples/layout/order_pipeline.json
func main() {
	file := flag.String("file", "cmd/examples/layout/order_pipeline.json", "workflow JSON file with nodes and edges")
	configPath := flag.String("config", "", "optional YAML config file")
	asJSON := flag.Bool("json", false, "print the layout as JSON")
	flag.Parse()

	cfg := loadConfig(*configPath)
	if err := log.InitLogger(cfg.Log.Level); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()
	logger := log.GetLogger()

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal("failed to read workflow file", zap.String("file", *file), zap.Error(err))
	}

	var wf types.Workflow
	if err := xjson.Unmarshal(data, &wf); err != nil {
		logger.Fatal("failed to parse workflow file", zap.String("file", *file), zap.Error(err))
	}

	for _, issue := range graph.Diagnose(wf.Nodes, wf.Edges) {
		logger.Warn("graph issue", zap.Error(issue))
	}

	layout := graph.Compute(wf.Nodes, wf.Edges, cfg.LayoutOptions()...)

	if *asJSON {
		out, err := xjson.MarshalIndent(layout, "", "  ")
		if err != nil {
			logger.Fatal("failed to encode layout", zap.Error(err))
		}
		fmt.Println(string(out))
		return
	}

	if err := graph.Render(os.Stdout, layout, nil); err != nil {
		logger.Fatal("failed to render layout", zap.Error(err))
	}

	fmt.Println("\nPositions:")
	for _, name := range layout.Flatten() {
		p := layout.Positions[name]
		fmt.Printf("  %-16s level %d  x=%7.1f  y=%6.1f\n", name, layout.Level(name), p.X, p.Y)
	}
	fmt.Printf("\nCanvas: %.0f x %.0f (shift x by %.0f)\n", layout.Bounds.Width, layout.Bounds.Height, layout.Bounds.OffsetX())
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
