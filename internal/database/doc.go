// Package database connects to the PostgreSQL/TimescaleDB instance that
// stores queue stats history and owns that schema.
package database
