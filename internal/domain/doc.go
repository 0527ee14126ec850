// Package domain contains the pure data model of a reconciliation pass.
//
// # Provenance
//
// Every value in a UnifiedMetadataRecord is traceable: matched fields carry
// the SourceOrigin of each contributing rendition, values computed by the
// engine are marked OriginDerived, reviewer input is OriginManual, and
// anything absent is listed by name in a ValidationState. There is no field
// without provenance.
//
// # Domain Purity
//
//	✓ No I/O (no database, HTTP, filesystem access)
//	✓ No context.Context in function signatures
//	✓ No time.Now() calls - time is received as parameters
//
// The application layer (internal/reconcile) injects the clock and talks to
// stores, publishers and metrics.
package domain
