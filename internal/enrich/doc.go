// Package enrich holds the domain types and collaborator interfaces shared by
// the voter enrichment pipeline: backlog records, identities, attempt
// outcomes, and the contracts implemented by the browser, storage, queue, and
// pacing packages.
package enrich
