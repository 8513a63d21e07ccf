// Package postgres implements a durable Postgres store for archived Driftlock data.
package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS predictions (
    id                    TEXT PRIMARY KEY,
    model_version         TEXT NOT NULL,
    predicted_label       TEXT NOT NULL,
    predicted_probability DOUBLE PRECISION NOT NULL,
    features              JSONB,
    categoricals          JSONB,
    latency_millis        BIGINT NOT NULL DEFAULT 0,
    timestamp             TIMESTAMPTZ NOT NULL,
    actual_label          TEXT,
    observed_at           TIMESTAMPTZ,
    archived_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_predictions_model_ts ON predictions (model_version, timestamp);

CREATE TABLE IF NOT EXISTS drift_reports (
    id            BIGSERIAL PRIMARY KEY,
    model_version TEXT NOT NULL,
    evaluated_at  TIMESTAMPTZ NOT NULL,
    aggregate     TEXT NOT NULL,
    sample_size   INTEGER NOT NULL,
    features      JSONB,
    archived_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (model_version, evaluated_at)
);
CREATE INDEX IF NOT EXISTS idx_drift_reports_model ON drift_reports (model_version, evaluated_at);

CREATE TABLE IF NOT EXISTS decisions (
    decision_id   TEXT PRIMARY KEY,
    model_version TEXT NOT NULL,
    evaluated_at  TIMESTAMPTZ NOT NULL,
    triggered     BOOLEAN NOT NULL,
    reasons       JSONB,
    details       JSONB,
    resolved      BOOLEAN NOT NULL DEFAULT FALSE,
    resolved_at   TIMESTAMPTZ,
    resolution    TEXT,
    archived_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_decisions_model ON decisions (model_version, evaluated_at);
CREATE INDEX IF NOT EXISTS idx_decisions_triggered ON decisions (triggered) WHERE NOT resolved;

CREATE TABLE IF NOT EXISTS events (
    id            BIGSERIAL PRIMARY KEY,
    stream_id     TEXT,
    kind          TEXT NOT NULL,
    model_version TEXT NOT NULL,
    decision_id   TEXT,
    feature       TEXT,
    status        TEXT,
    message       TEXT,
    details       JSONB,
    timestamp     TIMESTAMPTZ NOT NULL,
    archived_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup
    ON events (model_version, stream_id) WHERE stream_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_events_model_kind ON events (model_version, kind);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp);

CREATE TABLE IF NOT EXISTS archive_cursors (
    model_version TEXT NOT NULL,
    data_type     TEXT NOT NULL,
    cursor_value  TEXT NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (model_version, data_type)
);
`
