// Package filestore provides a content-addressed file backing for the entry
// store.
//
// Every key owns two names under the root directory:
//
//	<hex-key>.v     value record: version, created_at, expires_at, payload
//	<hex-key>.lock  present while the key is COMPUTING
//
// Value records are written to a temporary file and renamed into place, so
// readers see either the old record or the new one. A reader opens the value
// file exactly once; a missing file is a miss, and an unreadable or
// malformed one is a miss that is logged and counted.
//
// A reservation is the exclusive creation of the lock file. Waiters inside
// the process block on the computation's Flight. Waiters on a lock held by
// another process watch the root with fsnotify and poll with capped backoff;
// a lock older than AbandonedLockAfter is removed and the key reads as
// EMPTY. Open performs the same sweep at startup.
//
// Disk I/O runs through a circuit breaker. While it is open, reads are
// misses and reservations and publishes fail with store.ErrUnavailable.
//
// Deleting the root directory is equivalent to InvalidateAll.
package filestore
