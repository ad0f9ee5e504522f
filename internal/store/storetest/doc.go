// Package storetest holds the behavioral suite every store.TaskPool,
// store.ArchiveStore and store.UserStore implementation must pass.
package storetest
