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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/parliament/agent/deliberation"
	"github.com/BaSui01/parliament/api"
	"github.com/BaSui01/parliament/internal/metrics"
)

// runAsk 运行一次审议：进度写 stderr，最终回答写 stdout
func runAsk(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	session := fs.String("session", "", "Session id used for cost tracking")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	quiet := fs.Bool("quiet", false, "Do not print progress")
	timeout := fs.Duration("timeout", 0, "Overall deadline (default: server.request_timeout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" || prompt == "-" {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, api.MaxPromptBytes+1))
		if err != nil {
			fmt.Fprintf(stderr, "Failed to read prompt: %v\n", err)
			return 1
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		fmt.Fprintln(stderr, "Usage: parliament ask [--session id] [--json] <prompt>")
		return 2
	}
	if len(prompt) > api.MaxPromptBytes {
		fmt.Fprintf(stderr, "Prompt exceeds %d bytes\n", api.MaxPromptBytes)
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	d := cfg.Server.RequestTimeout
	if *timeout > 0 {
		d = *timeout
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	// 命令行模式不暴露 /metrics，使用私有 registry 避免污染全局
	collector := metrics.NewCollectorWithRegistry("parliament", prometheus.NewRegistry(), logger)
	a, err := newApp(ctx, cfg, collector, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	defer a.Close(context.Background())

	var sessionID *string
	if s := strings.TrimSpace(*session); s != "" {
		sessionID = &s
	}

	var reporter deliberation.Reporter
	if !*quiet {
		reporter = progressPrinter(stderr)
	}

	start := time.Now()
	res, err := a.engine.Run(ctx, prompt, sessionID, reporter)
	if err != nil {
		logger.Error("deliberation failed", zap.Error(err))
		fmt.Fprintf(stderr, "Deliberation failed: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(api.NewDeliberationResponse(res, time.Since(start))); err != nil {
			fmt.Fprintf(stderr, "Failed to encode result: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintln(stdout, res.FinalResponse)
	fmt.Fprintf(stderr, "\nconsensus=%t rounds=%d cost=$%.4f duration=%s\n",
		res.ConsensusReached, len(res.Rounds), res.TotalCostUSD, time.Since(start).Round(time.Millisecond))
	return 0
}

// progressPrinter 把进度事件逐行写到 w
func progressPrinter(w io.Writer) deliberation.Reporter {
	return deliberation.ReporterFunc(func(e deliberation.Event) {
		var b strings.Builder
		b.WriteString("[")
		b.WriteString(string(e.Stage))
		if e.Round > 0 {
			fmt.Fprintf(&b, " r%d", e.Round)
		}
		b.WriteString("] ")
		if e.Agent != "" {
			b.WriteString(e.Agent)
			b.WriteString(": ")
		}
		b.WriteString(e.Message)
		fmt.Fprintln(w, b.String())
	})
}
