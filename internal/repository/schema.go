package repository

// Schema definitions for the Underwriter database.
// Compatible with both SQLite and PostgreSQL. Rule lists and nested
// structures are stored as JSON in TEXT columns.

const schemaBanks = `
CREATE TABLE IF NOT EXISTS banks (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    use_common_rules INTEGER NOT NULL DEFAULT 1,
    rules TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// schemaGlobals holds a single row with id = 1.
const schemaGlobals = `
CREATE TABLE IF NOT EXISTS scoring_globals (
    id INTEGER PRIMARY KEY,
    enabled INTEGER NOT NULL DEFAULT 1,
    common_rules TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    banks TEXT NOT NULL,
    allowed TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_request ON evaluations(request_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(timestamp);
`

const schemaContracts = `
CREATE TABLE IF NOT EXISTS contracts (
    id TEXT PRIMARY KEY,
    inn TEXT NOT NULL,
    number TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    amount REAL NOT NULL,
    law TEXT NOT NULL DEFAULT '',
    signed_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_contracts_inn ON contracts(inn);
`

const schemaQuarterValues = `
CREATE TABLE IF NOT EXISTS quarter_values (
    inn TEXT NOT NULL,
    code INTEGER NOT NULL,
    year INTEGER NOT NULL,
    quarter INTEGER NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (inn, code, year, quarter)
);
`

const schemaRegistryEntries = `
CREATE TABLE IF NOT EXISTS registry_entries (
    kind TEXT NOT NULL,
    subject TEXT NOT NULL,
    listed INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT '',
    details TEXT,
    checked_at TIMESTAMP NOT NULL,
    PRIMARY KEY (kind, subject)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBanks,
		schemaGlobals,
		schemaEvaluations,
		schemaContracts,
		schemaQuarterValues,
		schemaRegistryEntries,
	}
}
