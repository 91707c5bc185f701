// Package storage holds what the analysis store adapters share: sentinel
// errors, tenant context helpers and list pagination defaults.
//
// The adapters (memory, postgres) implement transport.AnalysisStore.
package storage
