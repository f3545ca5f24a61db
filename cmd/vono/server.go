package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/kalambet/vono/internal/api"
	"github.com/kalambet/vono/internal/audio"
	"github.com/kalambet/vono/internal/config"
	"github.com/kalambet/vono/internal/credentials"
	"github.com/kalambet/vono/internal/crypto"
	"github.com/kalambet/vono/internal/extract"
	"github.com/kalambet/vono/internal/openai"
	"github.com/kalambet/vono/internal/pipeline"
	"github.com/kalambet/vono/internal/ratelimit"
	"github.com/kalambet/vono/internal/recovery"
	"github.com/kalambet/vono/internal/retry"
	"github.com/kalambet/vono/internal/sanitize"
	"github.com/kalambet/vono/internal/storage"
	"github.com/kalambet/vono/internal/transcribe"
)

// maxConns bounds concurrent HTTP connections. The daemon serves one
// user on localhost; anything beyond this is a runaway client.
const maxConns = 64

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the vono daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running vono daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath() string {
	return filepath.Join(os.TempDir(), "vono.pid")
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "vono version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Structured logging with unconditional secret redaction.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	handler := sanitize.NewLogHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(slog.New(handler))

	// Mint the bearer token for the local API on first run.
	kc := credentials.NewKeychain()
	apiToken, err := credentials.GetAPIToken(kc)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Refuse to double-start.
	pidPath := pidFilePath()
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("vono is already running (PID %d)", pid)
		}
		return fmt.Errorf("vono is already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open item storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("closing storage", "error", err)
		}
	}()

	// Encrypted failed-recording queue.
	encKey, err := crypto.EnsureKey(kc)
	if err != nil {
		return fmt.Errorf("loading encryption key: %w", err)
	}
	cipher, err := crypto.NewCipher(encKey)
	if err != nil {
		return fmt.Errorf("building cipher: %w", err)
	}
	failures := recovery.NewStore(
		filepath.Join(cfg.Storage.DataDir, "secure", "failed_recordings.json"), cipher)

	// Provider client, governance, and the two pipeline stages.
	client := openai.NewClientWithBaseURL(cfg.OpenAI.BaseURL)
	resolver := credentials.NewResolver(credentials.DefaultSources(kc, config.NewBackend())...)
	if _, err := resolver.Resolve(); err != nil {
		slog.Warn("no API key configured; recordings will fail until one is set",
			"hint", "run `vono key set <key>` or export "+credentials.EnvAPIKey)
	}

	transcribeLimiter := ratelimit.New("transcription",
		cfg.RateLimit.TranscriptionRPM, cfg.RateLimit.TranscriptionBurst)
	extractLimiter := ratelimit.New("extraction",
		cfg.RateLimit.ExtractionRPM, cfg.RateLimit.ExtractionBurst)
	retrier := retry.NewRunner(retryPolicyFromConfig(cfg))

	transcribeStage := transcribe.NewStage(client, resolver, transcribeLimiter, retrier, cfg.OpenAI.TranscriptionModel)
	extractStage := extract.NewStage(client, resolver, extractLimiter, retrier, cfg.OpenAI.ExtractionModel)
	orch := pipeline.New(audioLimitsFromConfig(cfg), transcribeStage, extractStage, failures)

	// HTTP and MCP surfaces share the same dependencies.
	appHandler := api.NewAppHandler(api.AppDeps{
		Store:         store,
		Failures:      failures,
		Pipeline:      orch,
		Token:         apiToken,
		MaxAudioBytes: int64(cfg.Audio.MaxFileSize),
	})
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		Failures: failures,
		Pipeline: orch,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, maxConns)
	srv := &http.Server{Handler: appHandler}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vono listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// retryPolicyFromConfig builds the provider retry policy. Duration
// strings that do not parse keep the default with a warning.
func retryPolicyFromConfig(cfg config.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if d, err := time.ParseDuration(cfg.Retry.InitialDelay); err == nil && d > 0 {
		policy.InitialDelay = d
	} else if cfg.Retry.InitialDelay != "" {
		slog.Warn("invalid retry.initial_delay, using default",
			"value", cfg.Retry.InitialDelay, "default", policy.InitialDelay)
	}
	if d, err := time.ParseDuration(cfg.Retry.MaxDelay); err == nil && d > 0 {
		policy.MaxDelay = d
	} else if cfg.Retry.MaxDelay != "" {
		slog.Warn("invalid retry.max_delay, using default",
			"value", cfg.Retry.MaxDelay, "default", policy.MaxDelay)
	}
	return policy
}

func audioLimitsFromConfig(cfg config.Config) audio.Limits {
	limits := audio.DefaultLimits()
	if cfg.Audio.MaxFileSize > 0 {
		limits.MaxSizeBytes = int64(cfg.Audio.MaxFileSize)
	}
	limits.MinDurationSeconds = cfg.Audio.MinDurationSeconds
	limits.MaxDurationSeconds = cfg.Audio.MaxDurationSeconds
	return limits
}

func stopServer() error {
	pidPath := pidFilePath()
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("vono is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop vono (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to vono (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	kc := credentials.NewKeychain()
	resolver := credentials.NewResolver(credentials.DefaultSources(kc, config.NewBackend())...)
	if _, err := resolver.Resolve(); err != nil {
		printStatus("API key", "not set (run `vono key set <key>`)")
	} else {
		printStatus("API key", "configured")
	}

	printStatus("Transcription model", "%s", cfg.OpenAI.TranscriptionModel)
	printStatus("Extraction model", "%s", cfg.OpenAI.ExtractionModel)
	printStatus("Provider", "%s", cfg.OpenAI.BaseURL)

	// Item and queue counts come from the API; skip them when stopped.
	if running {
		if c, err := newAPIClient(); err == nil {
			if resp, err := c.get(ctx, "/items?limit=100"); err == nil {
				var items []json.RawMessage
				if decodeJSON(resp, &items) == nil {
					printStatus("Items", "%s", countLabel(len(items), 100))
				}
			}
			if resp, err := c.get(ctx, "/failed/count"); err == nil {
				var count struct {
					Count int `json:"count"`
				}
				if decodeJSON(resp, &count) == nil {
					printStatus("Failed recordings", "%d", count.Count)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
