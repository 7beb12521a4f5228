// Package writer batches queue stats history into PostgreSQL/TimescaleDB.
//
// Rows are append-only. A row is recorded when the stats or queue length
// shown at the front desk change, whichever source produced them.
package writer
