package sqlite

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. Quantities are decimal strings; rowid gives insertion order.
const schema = `
CREATE TABLE IF NOT EXISTS parts (
    part_number         TEXT PRIMARY KEY,
    description         TEXT NOT NULL DEFAULT '',
    is_template         INTEGER NOT NULL DEFAULT 0,
    variant_of          TEXT NOT NULL DEFAULT '',
    assembly            INTEGER NOT NULL DEFAULT 0,
    trackable           INTEGER NOT NULL DEFAULT 0,
    default_expiry_days INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_parts_variant_of ON parts(variant_of);

CREATE TABLE IF NOT EXISTS bom_lines (
    id          TEXT PRIMARY KEY,
    assembly    TEXT NOT NULL,
    sub_part    TEXT NOT NULL,
    quantity    TEXT NOT NULL,
    reference   TEXT NOT NULL DEFAULT '',
    overage     TEXT NOT NULL DEFAULT '',
    consumable  INTEGER NOT NULL DEFAULT 0,
    inherited   INTEGER NOT NULL DEFAULT 0,
    optional    INTEGER NOT NULL DEFAULT 0,
    note        TEXT NOT NULL DEFAULT '',
    substitutes TEXT NOT NULL DEFAULT '[]',
    CHECK (assembly <> sub_part)
);

CREATE INDEX IF NOT EXISTS idx_bom_lines_assembly ON bom_lines(assembly);

CREATE TABLE IF NOT EXISTS bom_validations (
    assembly     TEXT PRIMARY KEY,
    validated    INTEGER NOT NULL DEFAULT 0,
    checksum     TEXT NOT NULL DEFAULT '',
    validated_at TEXT
);

CREATE TABLE IF NOT EXISTS stock_items (
    id           TEXT PRIMARY KEY,
    part         TEXT NOT NULL,
    quantity     TEXT NOT NULL,
    serial       TEXT NOT NULL DEFAULT '',
    batch        TEXT NOT NULL DEFAULT '',
    location     TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'Available' CHECK (status IN ('Available', 'Quarantine', 'Consumed')),
    expiry_date  TEXT,
    receipt_date TEXT NOT NULL,
    consumed_by  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_stock_items_part ON stock_items(part);

CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_items_part_serial
    ON stock_items(part, serial) WHERE serial <> '';

CREATE TABLE IF NOT EXISTS builds (
    id         TEXT PRIMARY KEY,
    part       TEXT NOT NULL,
    quantity   TEXT NOT NULL,
    completed  TEXT NOT NULL DEFAULT '0',
    status     INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS build_outputs (
    id             TEXT PRIMARY KEY,
    build          TEXT NOT NULL REFERENCES builds(id),
    quantity       TEXT NOT NULL,
    state          INTEGER NOT NULL DEFAULT 0,
    serial_pattern TEXT NOT NULL DEFAULT '',
    batch          TEXT NOT NULL DEFAULT '',
    location       TEXT NOT NULL DEFAULT '',
    produced_stock TEXT NOT NULL DEFAULT '[]',
    completed_at   TEXT
);

CREATE INDEX IF NOT EXISTS idx_build_outputs_build ON build_outputs(build);

CREATE TABLE IF NOT EXISTS build_allocations (
    id         TEXT PRIMARY KEY,
    build      TEXT NOT NULL,
    output     TEXT NOT NULL,
    bom_line   TEXT NOT NULL,
    stock_item TEXT NOT NULL,
    quantity   TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_build_allocations_output ON build_allocations(output);
CREATE INDEX IF NOT EXISTS idx_build_allocations_stock ON build_allocations(stock_item);
`

// Migrate creates any missing tables and indexes. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
