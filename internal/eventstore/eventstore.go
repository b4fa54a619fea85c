// Package eventstore keeps an append-only, per-aggregate versioned log of
// domain events next to the relational read model.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrNoEvents            = errors.New("no events to append")
)

// Event is one recorded change of an aggregate.
type Event struct {
	ID            int64           `json:"id" db:"id"`
	AggregateID   uuid.UUID       `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	EventType     string          `json:"event_type" db:"event_type"`
	EventData     json.RawMessage `json:"event_data" db:"event_data"`
	Metadata      map[string]any  `json:"metadata,omitempty" db:"-"`
	Version       int             `json:"version" db:"version"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// EventStore writes through whatever transaction the caller hands in, so the
// event commits or rolls back with the change it describes.
type EventStore struct {
	table  string
	tracer trace.Tracer
}

// New returns a store backed by table.
func New(table string) *EventStore {
	return &EventStore{
		table:  table,
		tracer: otel.Tracer("bookstore/eventstore"),
	}
}

// AggregateID derives a stable aggregate id from a numeric row id.
func AggregateID(aggregateType string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", aggregateType, id)))
}

// Append adds events after the aggregate's current version.
func (es *EventStore) Append(ctx context.Context, q sqlx.ExtContext, aggregateID uuid.UUID, aggregateType string, events []Event) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if len(events) == 0 {
		return ErrNoEvents
	}

	var current int
	err := sqlx.GetContext(ctx, q, &current,
		fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) FROM %s WHERE aggregate_id = $1`, es.table),
		aggregateID)
	if err != nil {
		return fmt.Errorf("query current version: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, es.table)

	for i, event := range events {
		version := current + i + 1
		// jsonb parameters go over the wire as text; lib/pq would send []byte as bytea.
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = q.ExecContext(ctx, insert,
			aggregateID, aggregateType, event.EventType, string(event.EventData), string(metadata), version, time.Now().UTC())
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				span.SetAttributes(attribute.Bool("conflict.detected", true))
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}
		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}
	return nil
}

// Load returns an aggregate's events in version order.
func (es *EventStore) Load(ctx context.Context, q sqlx.QueryerContext, aggregateID uuid.UUID) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	rows, err := q.QueryxContext(ctx, fmt.Sprintf(`
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM %s
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`, es.table), aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			event    Event
			metadata []byte
		)
		if err := rows.Scan(&event.ID, &event.AggregateID, &event.AggregateType, &event.EventType,
			&event.EventData, &metadata, &event.Version, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &event.Metadata)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// NewEvent marshals data into an Event of the given type.
func NewEvent(eventType string, data any, metadata map[string]any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event data: %w", err)
	}
	return Event{EventType: eventType, EventData: raw, Metadata: metadata}, nil
}
