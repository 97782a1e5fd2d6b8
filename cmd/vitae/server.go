package main

import (
	"context"
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

	"github.com/kalambet/vitae/internal/api"
	"github.com/kalambet/vitae/internal/config"
	"github.com/kalambet/vitae/internal/extract"
	"github.com/kalambet/vitae/internal/ingest"
	"github.com/kalambet/vitae/internal/metrics"
	"github.com/kalambet/vitae/internal/ollama"
	"github.com/kalambet/vitae/internal/storage"
	"github.com/kalambet/vitae/internal/store"
	"github.com/kalambet/vitae/internal/structure"
	"github.com/kalambet/vitae/internal/uploads"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the vitae server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running vitae server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vitae system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "vitae.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
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

// app is everything a running server owns.
type app struct {
	records  *store.Store
	history  *storage.Store
	pipeline *ingest.Pipeline
	uploads  uploads.Sink
	metrics  *metrics.Collector
}

func (a *app) Close() error {
	return a.history.Close()
}

// buildApp wires storage, collaborators and the pipeline from cfg.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	records, err := store.Open(cfg.RecordsPath())
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	extractor, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sink, err := newUploadSink(ctx, cfg)
	if err != nil {
		return nil, err
	}

	history, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}

	collector := metrics.New()
	pipeline := ingest.New(ingest.Options{
		Extractor:     extractor,
		ExtractorName: strings.ToLower(cfg.Extraction.Provider),
		Structurer:    structure.New(provider, cfg.LLMTimeout()),
		Store:         records,
		History:       history,
		Metrics:       collector,
		TmpDir:        cfg.Ingest.TmpDir,
	})

	return &app{
		records:  records,
		history:  history,
		pipeline: pipeline,
		uploads:  sink,
		metrics:  collector,
	}, nil
}

func newExtractor(cfg config.Config) (extract.Extractor, error) {
	switch strings.ToLower(cfg.Extraction.Provider) {
	case config.ExtractionLlamaParse:
		return extract.NewLlamaParse(cfg.Extraction.LlamaParseAPIKey, cfg.Extraction.LlamaParseBaseURL), nil
	case config.ExtractionLocal:
		return extract.NewLocal(), nil
	}
	return nil, fmt.Errorf("unknown extraction provider %q", cfg.Extraction.Provider)
}

func newProvider(ctx context.Context, cfg config.Config) (structure.Provider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case config.ProviderOpenAI:
		return structure.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil
	case config.ProviderGemini:
		p, err := structure.NewGemini(ctx, cfg.Gemini.APIKey, "", cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		return p, nil
	case config.ProviderOllama:
		client := ollama.New(cfg.Ollama.BaseURL)
		if err := ollama.EnsureReady(ctx, client, cfg.Ollama.Model, os.Stderr); err != nil {
			return nil, err
		}
		return structure.NewOllama(client, cfg.Ollama.Model), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

func newUploadSink(ctx context.Context, cfg config.Config) (uploads.Sink, error) {
	if strings.ToLower(cfg.Uploads.Backend) != config.UploadsS3 {
		return uploads.NewLocal(cfg.UploadsPath()), nil
	}
	sink, err := uploads.NewS3(ctx, uploads.S3Options{
		Bucket:    cfg.Uploads.S3Bucket,
		Region:    cfg.Uploads.S3Region,
		Endpoint:  cfg.Uploads.S3Endpoint,
		Prefix:    cfg.Uploads.S3Prefix,
		AccessKey: cfg.Uploads.S3AccessKey,
		SecretKey: cfg.Uploads.S3SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 upload sink: %w", err)
	}
	return sink, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "vitae version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	// Refuse to start twice.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("vitae is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("vitae is already running on %s", addr)
		return fmt.Errorf("server already running on %s", addr)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing history: %v\n", err)
		}
	}()

	slog.Info("record store ready", "dir", a.records.Dir())
	slog.Info("structuring provider", "provider", cfg.LLM.Provider, "extraction", cfg.Extraction.Provider, "uploads", a.uploads.Backend())
	if cfg.Server.APIToken == "" {
		slog.Warn("VITAE_API_TOKEN not set; HTTP API is unauthenticated")
	}

	handler := api.NewHandler(api.Deps{
		Ingester:       a.pipeline,
		Store:          a.records,
		Uploads:        a.uploads,
		History:        a.history,
		Metrics:        a.metrics,
		Token:          cfg.Server.APIToken,
		MaxUploadBytes: int64(cfg.Ingest.MaxUploadBytes),
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:          a.records,
			Ingester:       a.pipeline,
			Metrics:        a.metrics,
			MaxUploadBytes: int64(cfg.Ingest.MaxUploadBytes),
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "vitae listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.LoadForClient()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("vitae is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop vitae (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to vitae (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.LoadForClient()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(serverURL(cfg) + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on %s", serverURL(cfg))
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.LLM.Provider)
	switch strings.ToLower(cfg.LLM.Provider) {
	case config.ProviderOpenAI:
		printStatus("Model", "%s", cfg.OpenAI.Model)
	case config.ProviderGemini:
		printStatus("Model", "%s", cfg.Gemini.Model)
	case config.ProviderOllama:
		printStatus("Model", "%s", cfg.Ollama.Model)
		if ollama.New(cfg.Ollama.BaseURL).IsRunning(context.Background()) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
	}
	printStatus("Extraction", "%s", cfg.Extraction.Provider)
	printStatus("Uploads", "%s", cfg.Uploads.Backend)

	records := store.New(cfg.RecordsPath())
	printStatus("Experiences", "%d", len(records.Experiences.ReadAll()))
	printStatus("Projects", "%d", len(records.Projects.ReadAll()))

	if history, err := storage.Open(cfg.Storage.DataDir); err == nil {
		if counts, err := history.CountIngestions(); err == nil {
			printStatus("Ingestions", "%d completed, %d failed", counts[storage.StatusCompleted], counts[storage.StatusFailed])
		}
		history.Close()
	}

	printStatus("Records dir", "%s", cfg.RecordsPath())
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
