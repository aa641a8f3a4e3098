package worker

import (
	"context"
	"fmt"

	"moneta/internal/amqp"
	"moneta/internal/log"
	"moneta/internal/services"
)

// Processor is the part of services.SyncProcessor the worker drives.
type Processor interface {
	Trigger()
	ProcessPending(ctx context.Context)
}

// StartupSyncer queues the ambient pull performed when the worker starts.
type StartupSyncer interface {
	StartupSync(ctx context.Context) (string, bool, error)
}

// SyncWorker turns AMQP sync request messages into processor runs.
type SyncWorker struct {
	processor Processor
	settings  StartupSyncer
	logger    *log.Logger
}

func NewSyncWorker(processor Processor, settings StartupSyncer, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &SyncWorker{processor: processor, settings: settings, logger: logger}
}

// HandleSyncRequested wakes the processor. The message is only a hint: the
// request is read back from the queue, so duplicates are harmless.
func (w *SyncWorker) HandleSyncRequested(ctx context.Context, msg *amqp.SyncRequestedMessage) error {
	if _, err := services.ParseMode(msg.Mode); err != nil {
		w.logger.WarnContext(ctx, "Ignoring sync message with unknown mode",
			log.FieldRequest, msg.RequestID, log.FieldMode, msg.Mode)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldRequest, msg.RequestID,
		log.FieldMode, msg.Mode,
		"published_at", msg.Timestamp)

	w.processor.Trigger()
	return nil
}

// StartupSyncCheck queues a pull if sync is enabled and drains whatever is
// pending, recovering from missed messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	id, queued, err := w.settings.StartupSync(ctx)
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	if queued {
		w.logger.InfoContext(ctx, "Startup sync queued", log.FieldRequest, id)
	}
	w.processor.ProcessPending(ctx)
	return nil
}
