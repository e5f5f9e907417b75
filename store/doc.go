// Package store defines the entry store contract shared by every backing
// and provides the in-memory backing.
//
// An entry moves through EMPTY -> COMPUTING -> READY or FAILED and back to
// EMPTY on expiry, invalidation or retry. GetOrReserve either returns the
// current snapshot or hands the caller a Reservation, making it the only
// producer for that key until it calls Publish or Fail. Callers that find
// the key COMPUTING block in AwaitReady on the computation's Flight, which
// is closed exactly once with that computation's outcome.
//
// # Backings
//
//   - MemoryStore: a map guarded by one mutex; no user code or I/O runs
//     under it.
//   - filestore.Store: one file per key under a root directory.
//   - sqlstore.Store: rows in an embedded SQLite database.
//
// # Capacity
//
// With MaxEntries set, a new reservation first evicts the READY entry with
// the smallest creation time. When every entry is COMPUTING the reservation
// waits for capacity and returns ErrCapacityBlocked once CapacityWait
// elapses.
package store
