package repository

// Schema definitions for the Vigil database.
// Compatible with both SQLite and PostgreSQL.

const schemaFraudCasesSQLite = `
CREATE TABLE IF NOT EXISTS fraud_cases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    reason TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'OPEN',
    detected_at TIMESTAMP NOT NULL,
    UNIQUE (entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_cases_entity ON fraud_cases(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_fraud_cases_status ON fraud_cases(status);
CREATE INDEX IF NOT EXISTS idx_fraud_cases_score ON fraud_cases(score);
`

const schemaFraudCasesPostgres = `
CREATE TABLE IF NOT EXISTS fraud_cases (
    id BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    reason TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'OPEN',
    detected_at TIMESTAMP NOT NULL,
    UNIQUE (entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_cases_entity ON fraud_cases(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_fraud_cases_status ON fraud_cases(status);
CREATE INDEX IF NOT EXISTS idx_fraud_cases_score ON fraud_cases(score);
`

const schemaClaimRules = `
CREATE TABLE IF NOT EXISTS claim_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0.1,
    factor TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claim_rules_enabled ON claim_rules(enabled);
`

// AllSchemas returns all schema statements for a driver, in order.
func AllSchemas(driver string) []string {
	fraudCases := schemaFraudCasesSQLite
	if driver == "postgres" {
		fraudCases = schemaFraudCasesPostgres
	}
	return []string{
		fraudCases,
		schemaClaimRules,
	}
}
