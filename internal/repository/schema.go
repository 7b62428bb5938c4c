package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCatalogs = `
CREATE TABLE IF NOT EXISTS catalogs (
    insurer_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    published_at TIMESTAMP NOT NULL,
    dimensions TEXT NOT NULL,
    PRIMARY KEY (insurer_id, product_id, version)
);

CREATE INDEX IF NOT EXISTS idx_catalogs_pair ON catalogs(insurer_id, product_id);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    insurer_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    quote_id TEXT,
    catalog_version INTEGER NOT NULL,
    evaluated_at TIMESTAMP NOT NULL,
    base_premium REAL NOT NULL,
    total_percentage REAL NOT NULL,
    total_fixed REAL NOT NULL,
    final_premium REAL NOT NULL,
    decision TEXT NOT NULL,
    explanation TEXT,
    per_tier TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_insurer ON evaluations(insurer_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_quote ON evaluations(insurer_id, quote_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_decision ON evaluations(insurer_id, decision);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(insurer_id, evaluated_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCatalogs,
		schemaEvaluations,
	}
}
