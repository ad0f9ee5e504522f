// Package memory implements the store interfaces in process memory.
//
// Every pool operation runs under one mutex, which makes each conditional
// select-and-write atomic with respect to every other call. It backs the
// "memory" store driver and the service tests.
package memory
