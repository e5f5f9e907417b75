// Package sqlstore provides an entry store backed by an embedded SQLite
// database, accessed through gorm with the pure-Go glebarez driver.
//
// All entries live in one table, result_entries. A READY row carries the
// payload and its expiry; a COMPUTING row carries the owner token and the
// time the reservation was taken. FAILED and EMPTY entries have no row.
//
// Reservation is a transaction that inserts the row, or takes over an
// expired READY row or a COMPUTING row whose reservation is older than
// AbandonedLockAfter. Waiters inside the process block on the computation's
// Flight; rows reserved by another process are polled with capped backoff.
package sqlstore
