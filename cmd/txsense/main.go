// Command txsense explains a Sui transaction or package from the terminal.
//
// Usage:
//
//	txsense explain <digest | package id | explorer url>
//	txsense random
//	txsense quota
//
// The local rate window is shared with every other txsense invocation that
// uses the same store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dcablorh/txsense/internal/app"
	"github.com/dcablorh/txsense/internal/config"
	"github.com/dcablorh/txsense/internal/models"
	"github.com/dcablorh/txsense/internal/services"
	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/ratelimiter"

	"go.uber.org/zap"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("txsense", flag.ContinueOnError)
	fs.SetOutput(stderr)
	identity := fs.String("identity", ratelimiter.LocalIdentity, "Rate window identity")
	withRaw := fs.Bool("raw", false, "Include the raw transaction in the output")
	verbose := fs.Bool("v", false, "Log at debug level")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  txsense [flags] explain <digest | package id | explorer url>")
		fmt.Fprintln(stderr, "  txsense [flags] random")
		fmt.Fprintln(stderr, "  txsense [flags] quota")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitError
	}

	// stdout carries the JSON result
	if len(cfg.Logging.OutputPaths) == 1 && cfg.Logging.OutputPaths[0] == "stdout" {
		cfg.Logging.OutputPaths = []string{"stderr"}
	}
	level := cfg.Logging.Level
	if *verbose {
		level = "debug"
	} else if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	if err := logger.Initialize(&logger.Config{
		Level:       level,
		Environment: cfg.Logging.Environment,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: cfg.Logging.OutputPaths,
		Service:     "txsense-cli",
	}); err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return exitError
	}
	defer func() { _ = logger.GetLogger().Sync() }()

	ctx = logger.ContextWithCorrelationID(ctx, logger.GenerateCorrelationID())

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.GetLogger().Error("Failed to initialize pipeline", zap.Error(err))
		fmt.Fprintf(stderr, "Failed to initialize: %v\n", err)
		return exitError
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.GetLogger().Warn("Failed to close rate window store", zap.Error(err))
		}
	}()

	return execute(ctx, a.Explain, *identity, *withRaw, fs.Args(), stdout, stderr)
}

// execute runs one subcommand against the pipeline and prints its JSON
func execute(ctx context.Context, svc services.ExplainServiceInterface, identity string, withRaw bool, args []string, stdout, stderr io.Writer) int {
	var (
		out interface{}
		err error
	)

	switch args[0] {
	case "explain":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "explain needs an input")
			return exitUsage
		}
		var result *models.ExplainResult
		result, err = svc.Explain(ctx, identity, strings.Join(args[1:], " "))
		out = trimRaw(result, withRaw)
	case "random":
		var result *models.ExplainResult
		result, err = svc.Random(ctx, identity)
		out = trimRaw(result, withRaw)
	case "quota":
		out = svc.Quota(ctx, identity)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return exitUsage
	}

	if err != nil {
		appErr := models.AsAppError(err)
		resp := models.NewErrorResponse(appErr.Code, appErr.Message, appErr.Details, logger.GetCorrelationIDFromContext(ctx))
		resp.Error.WaitSeconds = appErr.WaitSeconds
		writeJSON(stderr, resp)
		return exitError
	}

	writeJSON(stdout, out)
	return exitOK
}

func trimRaw(result *models.ExplainResult, withRaw bool) *models.ExplainResult {
	if result != nil && result.Transaction != nil && !withRaw {
		tx := *result.Transaction
		tx.Raw = nil
		return &models.ExplainResult{Kind: result.Kind, Transaction: &tx}
	}
	return result
}

func writeJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
