// Package testdb provides utilities for PostgreSQL integration tests.
// Tests using it are skipped unless DATABASE_URL (or RECORDQ_TEST_DB_URL)
// points at a disposable database.
package testdb
