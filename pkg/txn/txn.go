// Package txn implements the transaction table of spec.md §4.4: an
// in-flight-request map keyed by (source IP, source port, request id),
// touched exclusively by the listener goroutine (spec.md §5, "the
// transaction table is touched only by the listener"). Table therefore
// carries no internal lock — single-owner access is a documented
// invariant, not something enforced by a mutex, per the design note in
// spec.md §9 ("Transaction table choice").
package txn

import "net"

// Key identifies one in-flight or retained transaction.
type Key struct {
	SourceIP   string // net.IP.String(), comparable and map-key-friendly
	SourcePort int
	RequestID  uint8
}

// NewKey builds a Key from a UDP source address and request id.
func NewKey(addr *net.UDPAddr, requestID uint8) Key {
	return Key{SourceIP: addr.IP.String(), SourcePort: addr.Port, RequestID: requestID}
}

// State is a transaction's position in the spec.md §3 lifecycle:
// Handling{worker} while a handler worker is still processing the
// request, Replied{worker} once it has sent a reply and is retaining it
// for retransmission.
type State int

const (
	Handling State = iota
	Replied
)

// Entry is one transaction table row.
type Entry struct {
	State    State
	WorkerID uint64
}

// Table is the listener's map of in-flight and retained transactions.
type Table struct {
	entries map[Key]Entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[Key]Entry)}
}

// Lookup returns the entry for key, if any.
func (t *Table) Lookup(key Key) (Entry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

// Insert adds a new Handling entry for key. Callers must have already
// checked the slot is empty (spec.md §4.1 step 4).
func (t *Table) Insert(key Key, workerID uint64) {
	t.entries[key] = Entry{State: Handling, WorkerID: workerID}
}

// MarkReplied transitions key to Replied, keeping the same worker.
// It is a no-op if key is absent (the worker may have already been
// purged by a concurrent abnormal exit).
func (t *Table) MarkReplied(key Key) {
	if e, ok := t.entries[key]; ok {
		e.State = Replied
		t.entries[key] = e
	}
}

// Remove deletes key from the table (spec.md §4.1 "discarded(key)").
func (t *Table) Remove(key Key) {
	delete(t.entries, key)
}

// PurgeWorker removes every entry whose worker matches workerID,
// regardless of key, implementing the "worker-exit abnormal" cleanup of
// spec.md §4.1 and the crash-isolation property of spec.md §8. It is an
// O(n) reverse scan, acceptable because abnormal exits are rare
// (spec.md §9).
func (t *Table) PurgeWorker(workerID uint64) {
	for k, e := range t.entries {
		if e.WorkerID == workerID {
			delete(t.entries, k)
		}
	}
}

// Len returns the number of tracked transactions, for tests and metrics.
func (t *Table) Len() int {
	return len(t.entries)
}
