package services

import (
	"context"
	"errors"
	"fmt"

	"moneta/internal/log"
)

// ErrSyncDisabled is returned when a sync is requested while the preference is off.
var ErrSyncDisabled = errors.New("cloud sync is disabled")

type SettingsStore interface {
	SyncEnabled(ctx context.Context) (bool, error)
	SetSyncEnabled(ctx context.Context, enabled bool) error
	EnqueueSyncRequest(ctx context.Context, mode string) (id string, created bool, err error)
}

// SyncNotifier wakes whoever drains the sync queue. The queue is polled as
// well, so a failed notification only delays the run.
type SyncNotifier interface {
	NotifySyncRequested(ctx context.Context, requestID string, mode Mode) error
}

// SettingsService owns the sync preference and turns toggles, startup and
// the push action into queued sync requests.
type SettingsService struct {
	store    SettingsStore
	notifier SyncNotifier
	logger   *log.Logger
}

func NewSettingsService(store SettingsStore, notifier SyncNotifier, logger *log.Logger) *SettingsService {
	if logger == nil {
		logger = log.Default(log.ComponentSync)
	}
	return &SettingsService{store: store, notifier: notifier, logger: logger}
}

func (s *SettingsService) SyncEnabled(ctx context.Context) (bool, error) {
	enabled, err := s.store.SyncEnabled(ctx)
	if err != nil {
		return false, fmt.Errorf("read sync preference: %w", err)
	}
	return enabled, nil
}

// SetSyncEnabled persists the preference. Turning sync on queues a push so the
// cloud immediately reflects the local profile; the request id is returned.
func (s *SettingsService) SetSyncEnabled(ctx context.Context, enabled bool) (string, error) {
	if err := s.store.SetSyncEnabled(ctx, enabled); err != nil {
		return "", fmt.Errorf("save sync preference: %w", err)
	}
	s.logger.InfoContext(ctx, "Sync preference changed", "enabled", enabled)
	if !enabled {
		return "", nil
	}
	return s.RequestSync(ctx, ModePush)
}

// RequestSync queues a sync run. A pending request of the same mode is reused.
func (s *SettingsService) RequestSync(ctx context.Context, mode Mode) (string, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return "", err
	}
	enabled, err := s.SyncEnabled(ctx)
	if err != nil {
		return "", err
	}
	if !enabled {
		return "", ErrSyncDisabled
	}

	id, created, err := s.store.EnqueueSyncRequest(ctx, string(mode))
	if err != nil {
		return "", fmt.Errorf("request %s sync: %w", mode, err)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifySyncRequested(ctx, id, mode); err != nil {
			s.logger.WarnContext(ctx, "Failed to notify sync request, relying on polling",
				log.FieldRequest, id, log.FieldMode, string(mode), log.FieldError, err)
		}
	}
	s.logger.InfoContext(ctx, "Sync requested",
		log.FieldRequest, id, log.FieldMode, string(mode), "reused", !created)
	return id, nil
}

// StartupSync queues an ambient pull when sync is enabled. It reports whether
// a request was queued.
func (s *SettingsService) StartupSync(ctx context.Context) (string, bool, error) {
	id, err := s.RequestSync(ctx, ModePull)
	if errors.Is(err, ErrSyncDisabled) {
		s.logger.InfoContext(ctx, "Sync disabled, skipping startup sync", log.FieldOperation, log.OpStartup)
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
