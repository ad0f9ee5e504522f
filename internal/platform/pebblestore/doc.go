// Package pebblestore implements the store interfaces on an embedded Pebble
// database for single-node deployments.
//
// Keys are namespaced by entity ("task/", "archive/", "user/") and values
// are JSON. Pool mutations hold one writer mutex across the read, the
// selection and the batch commit, so each conditional operation is atomic.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: "./data"})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	pool := pebblestore.NewTaskPool(db, logger)
package pebblestore
