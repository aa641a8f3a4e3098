// Package backend selects and builds the remote record store the sync engine
// talks to.
package backend

import (
	"context"

	"moneta/internal/cloud"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the backend instance and optional cleanup function
type Result struct {
	Backend cloud.Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	// Google Sheets specific
	GoogleSpreadsheetID   string
	GoogleUsersSheet      string
	GoogleCategoriesSheet string
	GoogleAssetsSheet     string
	GoogleCredentialsJSON []byte
}

// Type names a remote store implementation.
type Type string

const (
	SheetsBackend Type = "sheets"
	MemoryBackend Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
