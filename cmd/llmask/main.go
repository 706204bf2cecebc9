package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/martinemde/llmask/config"
	"github.com/martinemde/llmask/reliablellm"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	system := flag.String("system", "", "System prompt")
	temperature := flag.Float64("temperature", -1, "Sampling temperature (0-2); negative uses the backend default")
	maxTokens := flag.Int("max-tokens", 0, "Maximum tokens to generate; 0 uses the backend default")
	structured := flag.Bool("json", false, "Ask for a JSON answer and print the recovered value")
	retries := flag.Int("retries", -1, "Correction retries for -json; negative uses LLM_CORRECTION_RETRIES")
	list := flag.Bool("list", false, "List available backends and exit")
	repair := flag.Bool("repair", false, "Recover JSON from stdin without calling any backend")
	array := flag.Bool("array", false, "Extract an array from stdin without calling any backend")
	arrayKey := flag.String("array-key", reliablellm.DefaultArrayKey, "Object field holding the array for -array")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Offline modes need neither configuration nor backends.
	if *repair || *array {
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail("failed to read stdin", err)
		}
		if *array {
			printJSON(reliablellm.ExtractArray(string(input), *arrayKey))
			return
		}
		v, err := reliablellm.ParseJSON(string(input))
		if err != nil {
			fail("recovery failed", err)
		}
		printJSON(v)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("failed to load config", err)
	}
	if *isDebug {
		cfg.Log.Level = "debug"
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fail("failed to build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := reliablellm.NewClientFromConfig(cfg, reliablellm.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to build client", zap.Error(err))
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *list {
		for _, name := range client.ListAvailable(ctx) {
			fmt.Println(name)
		}
		return
	}

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Fatal("failed to read prompt", zap.Error(err))
		}
		prompt = strings.TrimSpace(string(input))
	}

	req := reliablellm.CompletionRequest{Prompt: prompt, SystemPrompt: *system}
	if *temperature >= 0 {
		req = req.WithTemperature(*temperature)
	}
	if *maxTokens > 0 {
		req = req.WithMaxTokens(*maxTokens)
	}

	if *structured {
		sreq := reliablellm.StructuredRequest{CompletionRequest: req, Schema: reliablellm.AnySchema}
		if *retries >= 0 {
			sreq.CorrectionRetries = reliablellm.Int(*retries)
		}
		v, err := client.CompleteStructured(ctx, sreq)
		if err != nil {
			exitWithFailure(logger, err)
		}
		printJSON(v)
		return
	}

	text, err := client.Complete(ctx, req)
	if err != nil {
		exitWithFailure(logger, err)
	}
	fmt.Println(text)
}

func exitWithFailure(logger *zap.Logger, err error) {
	var agg *reliablellm.AggregatedFailure
	switch {
	case errors.As(err, &agg) && agg.AllUnavailable():
		logger.Error("no backend is reachable", zap.Strings("backends", backendNames(agg)))
	case errors.As(err, &agg) && agg.AllInvalidOutput():
		logger.Error("every backend answered but none produced valid output")
	}
	fmt.Fprintln(os.Stderr, err)
	_ = logger.Sync()
	os.Exit(1)
}

func backendNames(agg *reliablellm.AggregatedFailure) []string {
	names := make([]string, len(agg.Attempts))
	for i, a := range agg.Attempts {
		names[i] = a.Source
	}
	return names
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("failed to encode output", err)
	}
	fmt.Println(string(out))
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
