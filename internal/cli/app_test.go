package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"moneta/internal/config"
	"moneta/internal/log"
	"moneta/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                    "8081",
		SQLiteDBPath:            filepath.Join(t.TempDir(), "moneta.db"),
		CloudBackend:            "memory",
		SyncPollInterval:        time.Second,
		SyncBatchSize:           10,
		SyncMaxRetries:          3,
		SyncMaxConvergeAttempts: 3,
		SyncBackoffMin:          time.Millisecond,
		SyncBackoffMax:          2 * time.Millisecond,
		SyncConvergeTimeout:     time.Second,
		LogLevel:                "info",
	}
}

func TestNewApp_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	logger := log.New(log.Config{Component: log.ComponentApp, Output: io.Discard})

	app, err := NewApp(ctx, testConfig(t), logger)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.AMQP != nil {
		t.Error("AMQP client should be nil without a broker URL")
	}

	cats, err := app.Expenses.ListCategories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) == 0 {
		t.Fatal("expected default categories to be seeded")
	}

	if _, err := app.Settings.SetSyncEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	app.Processor.ProcessPending(ctx)

	stats, err := app.Processor.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Completed != 1 {
		t.Errorf("expected the enable push to complete, got %+v", stats)
	}

	rep, err := app.Engine.Run(ctx, services.ModePull)
	if err != nil {
		t.Fatalf("pull after push should succeed: %v", err)
	}
	if rep.Categories.Writes() != 0 {
		t.Errorf("pull after push should not write categories, got %+v", rep.Categories)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewApp_ProcessorLogsAsWorker(t *testing.T) {
	ctx := context.Background()
	var out lockedBuffer
	logger := log.New(log.Config{Component: log.ComponentApp, Output: &out})

	app, err := NewApp(ctx, testConfig(t), logger)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if err := app.Processor.Start(ctx); err != nil {
		t.Fatal(err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := app.Processor.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}

	var started string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, `msg="Sync processor started"`) {
			started = line
		}
	}
	if started == "" {
		t.Fatalf("no start line in log output:\n%s", out.String())
	}
	if !strings.Contains(started, "component="+log.ComponentWorker) {
		t.Errorf("processor logged under the wrong component: %s", started)
	}
}

func TestNewApp_InvalidBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.CloudBackend = "ftp"
	logger := log.New(log.Config{Component: log.ComponentApp, Output: io.Discard})

	if _, err := NewApp(context.Background(), cfg, logger); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestSetupLogger(t *testing.T) {
	if l := SetupLogger("debug"); l == nil {
		t.Fatal("expected logger")
	}
	if l := SetupLogger("nonsense"); l == nil {
		t.Fatal("unknown level should fall back to info")
	}
}
