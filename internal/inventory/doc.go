// Package inventory is the record store: the product table plus the
// append-only activity log, guarded by one lock and persisted as a single
// JSON snapshot file.
//
// Every mutation applies its change and appends its activity record inside
// the same critical section, so readers (including the monitor's scan) only
// ever see whole operations. Durable writes go to a temp file in the target
// directory and are renamed into place.
package inventory
