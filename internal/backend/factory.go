package backend

import (
	"context"
	"fmt"

	gcloud "moneta/internal/cloud/google"
	"moneta/internal/cloud/memory"
	"moneta/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger

	// newSheets is swapped in tests to avoid dialing Google.
	newSheets func(ctx context.Context, cfg gcloud.Config) (*gcloud.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Default(log.ComponentCloud)
	}
	return &DefaultFactory{
		logger:    logger,
		newSheets: gcloud.New,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*Result, error) {
	cli, err := f.newSheets(ctx, gcloud.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		UsersSheet:      config.GoogleUsersSheet,
		CategoriesSheet: config.GoogleCategoriesSheet,
		AssetsSheet:     config.GoogleAssetsSheet,
		CredentialsJSON: config.GoogleCredentialsJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets backend",
		"spreadsheet_id", config.GoogleSpreadsheetID)

	return &Result{Backend: cli}, nil
}

// createMemoryBackend keeps records for the lifetime of the process only.
func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*Result, error) {
	f.logger.InfoContext(ctx, "Initialized memory backend")
	return &Result{Backend: memory.New()}, nil
}
