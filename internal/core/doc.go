// Package core holds the vehicle taxonomy domain: the make/model/variant
// hierarchy, the CSV import pipeline and the CRUD commands.
//
// Nothing here knows about HTTP, SQL or DynamoDB. Stores plug in through
// [Repository] and [Store]; files arrive through [FileSource].
//
// # Import pipeline
//
// An [ImportJob] reads a CSV one record at a time and sends each row
// through the same stages:
//
//  1. [CSVReader] yields records, flagging rows with a wrong column count
//  2. [RowMapper] applies the business filters and builds ids and names
//  3. [RowValidator] checks structural rules from the [Policy]
//  4. [Deduplicator] decides which make, model and variant are new
//  5. new entities are buffered and written parent first in batches
//
// Every row lands in exactly one bucket of the [ImportJobResult]: success,
// skipped (with a reason) or invalid (with messages). In
// [ImportModeValidate] steps 1-4 run but nothing is written.
//
// # Service
//
// [Service] wraps imports with a concurrency limit, a timeout, cancellation
// and history, and exposes the Add/IsUnique/List/Delete commands for each
// level. Commands report user mistakes in a [CommandResponse] and reserve
// Go errors for store failures.
//
// # Error handling
//
// Technical errors are mapped to user-facing messages with [MapError].
// Codes are grouped by prefix: DB for store problems, FILE for uploads,
// IMP for import control, ENT for entity lookups and RATE for throttling.
package core
