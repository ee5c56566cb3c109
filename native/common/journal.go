package common

import "errors"

// Transactional is implemented by stateful collaborators that can roll back
// their writes to an earlier point.
type Transactional interface {
	Snapshot() int
	// RevertToSnapshot reports undo steps that failed. The remaining steps
	// are still applied.
	RevertToSnapshot(id int) error
	Release(id int)
}

// Journal records undo closures for writes performed while at least one
// snapshot is open. Writes made with no open snapshot are not recorded.
//
// Journal is not safe for concurrent use.
type Journal struct {
	entries []func() error
	open    int
}

// Record appends an undo step when a snapshot is open.
func (j *Journal) Record(undo func()) {
	if undo == nil {
		return
	}
	j.RecordFallible(func() error {
		undo()
		return nil
	})
}

// RecordFallible appends an undo step that can fail, such as a write to a
// backing store.
func (j *Journal) RecordFallible(undo func() error) {
	if j.open == 0 || undo == nil {
		return
	}
	j.entries = append(j.entries, undo)
}

// Snapshot opens a snapshot and returns its identifier.
func (j *Journal) Snapshot() int {
	j.open++
	return len(j.entries)
}

// RevertToSnapshot undoes every write recorded after the snapshot was taken,
// newest first, and closes the snapshot. Failed steps are joined into the
// returned error.
func (j *Journal) RevertToSnapshot(id int) error {
	if id < 0 {
		id = 0
	}
	var errs []error
	for i := len(j.entries) - 1; i >= id; i-- {
		if err := j.entries[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if id < len(j.entries) {
		j.entries = j.entries[:id]
	}
	j.close()
	return errors.Join(errs...)
}

// Release closes the snapshot keeping its writes. Once the outermost snapshot
// is released the recorded undo steps are dropped.
func (j *Journal) Release(int) {
	j.close()
}

// Len reports the number of recorded undo steps.
func (j *Journal) Len() int {
	return len(j.entries)
}

func (j *Journal) close() {
	if j.open > 0 {
		j.open--
	}
	if j.open == 0 {
		j.entries = nil
	}
}
