package store

// SQL schema constants for the durable SQLite backend. Timestamps are unix
// seconds; ttl is seconds. An entry is live while last_seen + ttl >= now.

const schemaFingerprints = `
CREATE TABLE IF NOT EXISTS fingerprints (
    hash TEXT NOT NULL,
    source TEXT NOT NULL,
    first_seen INTEGER NOT NULL,
    last_seen INTEGER NOT NULL,
    ttl INTEGER NOT NULL,
    PRIMARY KEY (hash, source)
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_source_lastseen ON fingerprints(source, last_seen);
`

const schemaLastSuccess = `
CREATE TABLE IF NOT EXISTS last_success (
    source TEXT PRIMARY KEY,
    timestamp TEXT NOT NULL
);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// allSchemas is the ordered list of schema DDL statements that form
// the initial (version-1) database layout.
var allSchemas = []string{
	schemaFingerprints,
	schemaLastSuccess,
	schemaMigrations,
}
