// Package db embeds the database schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for the promotions and exchange_rates tables. It is
// idempotent, so running it against an existing database is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
