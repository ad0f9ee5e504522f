// Package postgres provides PostgreSQL implementations of the store
// interfaces and the embedded goose migrations that create their schema.
//
// Pool operations are single statements. AcquireNext selects with
// FOR UPDATE SKIP LOCKED inside the UPDATE that sets the lease, so two
// concurrent acquires can never claim the same row.
package postgres
