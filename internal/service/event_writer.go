package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"go.uber.org/zap"
)

// EventStore is the persistence side of the event writer
type EventStore interface {
	CreateIfAbsent(ctx context.Context, event *model.Event) (bool, error)
}

// EventWriter persists alertable occurrences exactly once
type EventWriter struct {
	store  EventStore
	logger *zap.Logger
}

func NewEventWriter(store EventStore, logger *zap.Logger) *EventWriter {
	return &EventWriter{store: store, logger: logger.Named("event_writer")}
}

// Write stores the event under its occurrence key. created is false when the
// same occurrence was already stored, in which case the caller must not fan out again.
func (w *EventWriter) Write(ctx context.Context, event *model.Event) (bool, error) {
	if event.DeviceID == uuid.Nil || event.ElderID == uuid.Nil {
		return false, errors.New("event requires a device and a paired elder")
	}
	if event.Timestamp.IsZero() {
		return false, errors.New("event requires a timestamp")
	}
	event.Timestamp = event.Timestamp.UTC()
	event.OccurrenceKey = model.OccurrenceKeyFor(event.DeviceID, event.Type, event.Timestamp)

	created, err := w.store.CreateIfAbsent(ctx, event)
	if err != nil {
		return false, &PersistenceError{Op: "create event", Err: err}
	}
	if !created {
		w.logger.Info("Duplicate occurrence ignored",
			zap.String("occurrence_key", event.OccurrenceKey),
			zap.String("type", string(event.Type)))
	}
	return created, nil
}
