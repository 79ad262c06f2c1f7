// Package refdata defines the reference tables that drive the request
// workflow: departments, statuses, and urgency levels.
//
// Rows are identified in code by stable symbolic keys. Numeric ids only exist
// in the database; a Catalog loaded at startup resolves keys to rows so the
// workflow engine never hard-codes ids. The default rows ship as an embedded
// YAML seed applied once to an empty database.
package refdata
