package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/xhad/solar/internal/types"
	cfgPkg "github.com/xhad/solar/pkg/config"
	"github.com/xhad/solar/pkg/embedding"
	"github.com/xhad/solar/pkg/layout"
	"github.com/xhad/solar/pkg/llm"
	"github.com/xhad/solar/pkg/logging"
	"github.com/xhad/solar/pkg/store"
	"github.com/xhad/solar/pkg/tools"
)

const usage = `Usage: solar <command> [flags]

Commands:
  passages     embed and store passages (arguments or -file, one per line)
  pdf          run layout analysis on a PDF and store its elements
  url          scrape a site and store its passages
  rag          retrieve the passages nearest to a query
  collections  list stored collections, or delete one
  dining       get dining recommendations for a region
  chat         chat interactively, grounded on a collection
  serve        start the HTTP and websocket server

Run 'solar <command> -h' for the flags of a command.
`

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"passages":    runPassages,
	"pdf":         runPDF,
	"url":         runURL,
	"rag":         runRAG,
	"collections": runCollections,
	"dining":      runDining,
	"chat":        runChat,
	"serve":       runServe,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		if name != "-h" && name != "--help" && name != "help" {
			color.Red("unknown command: %s\n", name)
		}
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath, args := splitConfigFlag(os.Args[2:])

	a, err := newApp(ctx, configPath)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := cmd(ctx, a, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		color.Red("Error: %v\n", err)
		stop()
		a.Close()
		os.Exit(1)
	}
}

// splitConfigFlag pulls -config out of args so the config is loaded before
// the command parses its own flags.
func splitConfigFlag(args []string) (string, []string) {
	var path string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "-config="):
			path = strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}
	return path, rest
}

func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: solar %s [-config path] %s\n\nFlags:\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

type app struct {
	config   *cfgPkg.Config
	logger   *slog.Logger
	client   *llm.Client
	store    types.VectorStore
	service  *embedding.Service
	registry *tools.Registry
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	config, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(); len(errs) > 0 {
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	logger := logging.New(config.Log.Level, config.Log.Format, os.Stderr)
	slog.SetDefault(logger)

	backend, err := llm.NewOpenAIBackend(llm.BackendConfig{
		BaseURL:        config.LLM.BaseURL,
		APIKey:         config.LLM.APIKey,
		ChatModel:      config.LLM.ChatModel,
		EmbeddingModel: config.LLM.QueryEmbeddingModel,
	})
	if err != nil {
		return nil, err
	}

	client := llm.NewWithConfig(backend, llm.ClientConfig{
		ChatModel:      config.LLM.ChatModel,
		EmbeddingModel: config.LLM.QueryEmbeddingModel,
		Retry: llm.RetryPolicy{
			MaxAttempts: config.LLM.Retry.MaxAttempts,
			BaseDelay:   config.LLM.Retry.BaseDelay,
			Multiplier:  config.LLM.Retry.Multiplier,
			Retryable:   llm.IsConnectionError,
		},
		RateLimit: config.LLM.RateLimit,
		Logger:    logger,
	})

	var analyzer types.LayoutAnalyzer
	switch config.Layout.Driver {
	case "local":
		analyzer = layout.NewPDFAnalyzer(logger)
	default:
		analyzer = layout.NewUpstageClient(layout.UpstageConfig{
			URL:     config.Layout.URL,
			APIKey:  config.Layout.APIKey,
			Timeout: config.Layout.Timeout,
			OCR:     config.Layout.OCR,
			Logger:  logger,
		})
	}

	var vectorStore types.VectorStore
	switch config.Database.Driver {
	case "memory":
		metric, err := store.ParseMetric(config.Database.Metric)
		if err != nil {
			return nil, err
		}
		vectorStore = store.NewMemoryStore(metric)
	default:
		vectorStore, err = store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: config.Database.URL,
			Metric:     config.Database.Metric,
			MaxConns:   config.Database.MaxConns,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	}

	service := embedding.NewService(client, analyzer, vectorStore, embedding.WithLogger(logger))

	return &app{
		config:   config,
		logger:   logger,
		client:   client,
		store:    vectorStore,
		service:  service,
		registry: tools.NewRegistry(tools.NewDiningTool(service)),
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}
