package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"camguard/internal/apperr"
	"camguard/internal/stream"
	"camguard/internal/vlm"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS streams (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_locator TEXT NOT NULL,
	capture_interval_seconds INTEGER NOT NULL DEFAULT 5,
	blueprint_id TEXT,
	enabled BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ DEFAULT now(),
	updated_at TIMESTAMPTZ DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_streams_blueprint_id ON streams(blueprint_id);

CREATE TABLE IF NOT EXISTS stream_rules (
	id TEXT PRIMARY KEY,
	stream_id TEXT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
	description TEXT NOT NULL,
	threat_level TEXT NOT NULL DEFAULT 'medium'
);
CREATE INDEX IF NOT EXISTS idx_stream_rules_stream_id ON stream_rules(stream_id);

-- stream_id is intentionally not a foreign key: a worker may persist an
-- event for a stream that was deleted while its frame was in flight.
CREATE TABLE IF NOT EXISTS analysis_events (
	id TEXT PRIMARY KEY,
	stream_id TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ DEFAULT now(),
	description TEXT NOT NULL,
	events_json JSONB NOT NULL,
	risk_level TEXT NOT NULL,
	triggered_rule TEXT,
	title TEXT,
	frame BYTEA,
	status TEXT NOT NULL DEFAULT 'unresolved'
);
CREATE INDEX IF NOT EXISTS idx_analysis_events_stream_id ON analysis_events(stream_id);
CREATE INDEX IF NOT EXISTS idx_analysis_events_created_at ON analysis_events(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analysis_events_risk_level ON analysis_events(risk_level);

CREATE TABLE IF NOT EXISTS alert_settings (
	id BOOLEAN PRIMARY KEY DEFAULT true CHECK (id),
	default_to_number TEXT
);
`

// Postgres is a pgx-backed implementation of Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) createSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// ListStreams implements Store.
func (p *Postgres) ListStreams(ctx context.Context, blueprint *BlueprintFilter) ([]stream.Spec, error) {
	query := `
		SELECT id, name, source_type, source_locator, capture_interval_seconds, enabled
		FROM streams
	`
	args := []any{}
	if blueprint != nil {
		query += " WHERE blueprint_id = $1"
		args = append(args, blueprint.BlueprintID.String())
	}
	query += " ORDER BY name"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "list streams", err)
	}
	defer rows.Close()

	var specs []stream.Spec
	for rows.Next() {
		var (
			id, name, sourceType, sourceLocator string
			intervalSeconds                     int
			enabled                             bool
		)
		if err := rows.Scan(&id, &name, &sourceType, &sourceLocator, &intervalSeconds, &enabled); err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan stream row", err)
		}
		parsedID, err := uuid.Parse(id)
		if err != nil {
			return nil, apperr.Wrap(apperr.Database, "parse stream id", err)
		}
		source, err := stream.ParseSourceType(sourceType)
		if err != nil {
			return nil, apperr.Wrap(apperr.Database, "parse source_type", err)
		}
		specs = append(specs, stream.Spec{
			ID:              parsedID,
			Name:            name,
			Source:          source,
			SourceLocator:   sourceLocator,
			CaptureInterval: time.Duration(intervalSeconds) * time.Second,
			Enabled:         enabled,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Database, "iterate stream rows", err)
	}
	return specs, nil
}

// SetStreamEnabled implements Store.
func (p *Postgres) SetStreamEnabled(ctx context.Context, id uuid.UUID, enabled bool) (stream.Spec, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE streams SET enabled = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, source_type, source_locator, capture_interval_seconds, enabled
	`, id.String(), enabled)

	var (
		gotID, name, sourceType, sourceLocator string
		intervalSeconds                        int
		gotEnabled                             bool
	)
	if err := row.Scan(&gotID, &name, &sourceType, &sourceLocator, &intervalSeconds, &gotEnabled); err != nil {
		if err == pgx.ErrNoRows {
			return stream.Spec{}, apperr.New(apperr.NotFound, fmt.Sprintf("stream %s not found", id))
		}
		return stream.Spec{}, apperr.Wrap(apperr.Database, "set stream enabled", err)
	}

	source, err := stream.ParseSourceType(sourceType)
	if err != nil {
		return stream.Spec{}, apperr.Wrap(apperr.Database, "parse source_type", err)
	}
	return stream.Spec{
		ID:              id,
		Name:            name,
		Source:          source,
		SourceLocator:   sourceLocator,
		CaptureInterval: time.Duration(intervalSeconds) * time.Second,
		Enabled:         gotEnabled,
	}, nil
}

// ListRules implements Store.
func (p *Postgres) ListRules(ctx context.Context, streamID uuid.UUID) ([]vlm.Rule, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT description, threat_level FROM stream_rules WHERE stream_id = $1
	`, streamID.String())
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "list rules", err)
	}
	defer rows.Close()

	var rules []vlm.Rule
	for rows.Next() {
		var description, threatLevel string
		if err := rows.Scan(&description, &threatLevel); err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan rule row", err)
		}
		rules = append(rules, vlm.Rule{Description: description, ThreatLevel: vlm.RiskLevel(threatLevel)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Database, "iterate rule rows", err)
	}
	return rules, nil
}

// InsertEvent implements Store.
func (p *Postgres) InsertEvent(ctx context.Context, rec EventRecord) (EventRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Events == nil {
		rec.Events = []vlm.DetectedEvent{}
	}

	eventsJSON, err := json.Marshal(rec.Events)
	if err != nil {
		return EventRecord{}, apperr.Wrap(apperr.Database, "marshal events", err)
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO analysis_events
			(id, stream_id, captured_at, description, events_json, risk_level, triggered_rule, title, frame, status)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10)
		RETURNING created_at
	`,
		rec.ID.String(), rec.StreamID.String(), rec.CapturedAt, rec.Description,
		eventsJSON, string(rec.RiskLevel), rec.TriggeredRule, rec.Title, rec.Frame, string(rec.Status),
	)

	if err := row.Scan(&rec.CreatedAt); err != nil {
		return EventRecord{}, apperr.Wrap(apperr.Database, "insert event", err)
	}
	return rec, nil
}

// ListEvents implements Store.
func (p *Postgres) ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, stream_id, captured_at, created_at, description, events_json,
		       risk_level, triggered_rule, title, status
		FROM analysis_events
		WHERE 1=1
	`
	args := []any{}
	argN := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StreamID != nil {
		query += " AND stream_id = " + argN(filter.StreamID.String())
	}
	if filter.RiskLevel != nil {
		query += " AND risk_level = " + argN(string(*filter.RiskLevel))
	}
	if filter.From != nil {
		query += " AND captured_at >= " + argN(*filter.From)
	}
	if filter.To != nil {
		query += " AND captured_at <= " + argN(*filter.To)
	}
	query += " ORDER BY created_at DESC LIMIT " + argN(limit) + " OFFSET " + argN(filter.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "list events", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		rec, eventsJSON, streamID, id, err := scanEventCore(rows)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(eventsJSON, &rec.Events); err != nil {
			return nil, apperr.Wrap(apperr.Database, "unmarshal events_json", err)
		}
		rec.ID = id
		rec.StreamID = streamID
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Database, "iterate event rows", err)
	}
	return records, nil
}

func scanEventCore(rows pgx.Rows) (rec EventRecord, eventsJSON []byte, streamID, id uuid.UUID, err error) {
	var idStr, streamIDStr, riskLevel, status string
	if scanErr := rows.Scan(&idStr, &streamIDStr, &rec.CapturedAt, &rec.CreatedAt, &rec.Description,
		&eventsJSON, &riskLevel, &rec.TriggeredRule, &rec.Title, &status); scanErr != nil {
		return EventRecord{}, nil, uuid.Nil, uuid.Nil, apperr.Wrap(apperr.Database, "scan event row", scanErr)
	}
	id, err = uuid.Parse(idStr)
	if err != nil {
		return EventRecord{}, nil, uuid.Nil, uuid.Nil, apperr.Wrap(apperr.Database, "parse event id", err)
	}
	streamID, err = uuid.Parse(streamIDStr)
	if err != nil {
		return EventRecord{}, nil, uuid.Nil, uuid.Nil, apperr.Wrap(apperr.Database, "parse event stream id", err)
	}
	rec.RiskLevel = vlm.RiskLevel(riskLevel)
	rec.Status = Status(status)
	return rec, eventsJSON, streamID, id, nil
}

// UpdateEventStatus implements Store.
func (p *Postgres) UpdateEventStatus(ctx context.Context, id uuid.UUID, status Status) (EventRecord, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE analysis_events SET status = $2
		WHERE id = $1
		RETURNING id, stream_id, captured_at, created_at, description, events_json,
		          risk_level, triggered_rule, title, status
	`, id.String(), string(status))
	if err != nil {
		return EventRecord{}, apperr.Wrap(apperr.Database, "update event status", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return EventRecord{}, apperr.New(apperr.NotFound, fmt.Sprintf("event %s not found", id))
	}
	rec, eventsJSON, streamID, gotID, err := scanEventCore(rows)
	if err != nil {
		return EventRecord{}, err
	}
	if err := json.Unmarshal(eventsJSON, &rec.Events); err != nil {
		return EventRecord{}, apperr.Wrap(apperr.Database, "unmarshal events_json", err)
	}
	rec.ID = gotID
	rec.StreamID = streamID
	return rec, nil
}

// AlertToNumber implements Store.
func (p *Postgres) AlertToNumber(ctx context.Context) (string, bool, error) {
	var number *string
	err := p.pool.QueryRow(ctx, `SELECT default_to_number FROM alert_settings WHERE id = true`).Scan(&number)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.Database, "read alert settings", err)
	}
	if number == nil || *number == "" {
		return "", false, nil
	}
	return *number, true, nil
}
