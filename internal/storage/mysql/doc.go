// Package mysql provides the audit repository backed by MySQL. It records
// every executed or cancelled confirmation action so operators can reconstruct
// what the assistant did on behalf of a user, and ships an in-memory variant
// for tests and single-node deployments.
package mysql
