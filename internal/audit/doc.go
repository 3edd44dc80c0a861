// Package audit defines the append-only audit trail of the document engine.
//
// Entries are produced by the document aggregate, one per successful
// mutation, and handed to a Sink inside the same repository transaction as
// the mutation itself. Entries are never updated or deleted.
package audit
