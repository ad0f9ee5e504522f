// Package domain contains the core business entities of the record queue:
// pool tasks and their leases, submissions, archived records and users. It is
// independent of any specific storage backend or delivery mechanism.
package domain
