// Package store defines the persistence contracts of the task queue: the
// active task pool, the append-only archive and the user directory.
//
// Every mutating TaskPool method is a single atomic conditional operation
// in the backing store. Callers express ownership preconditions through a
// Match and never read a task to decide whether to write it.
package store
