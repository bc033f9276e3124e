package indexer

import "time"

// FileState is the indexing state of one file
type FileState string

const (
	StateUntracked  FileState = "untracked"
	StateIndexed    FileState = "indexed"
	StateStale      FileState = "stale"
	StateReindexing FileState = "reindexing"
	StateRemoved    FileState = "removed"
)

// removedHistory bounds how many deleted paths still report StateRemoved
const removedHistory = 4096

// fileTrack is the loop-owned bookkeeping for one file with work
// outstanding. Generations come from one coordinator-wide counter, so a
// track recreated for the same path never reuses one.
type fileTrack struct {
	gen     uint64 // set from the counter on every event
	deleted bool   // latest event was a deletion
	timer   *time.Timer

	due      bool // debounce for gen elapsed but no pass started yet
	inflight bool
	passGen  uint64
}

type timerFire struct {
	path string
	gen  uint64
}

// FileState returns the current state of path. A file stays indexed until
// a pass finds its bytes changed; touching it without changing it is not
// visible. Only the most recent removals report StateRemoved.
func (c *Coordinator) FileState(path string) FileState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if s, ok := c.states[path]; ok {
		return s
	}
	if c.removed.Contains(path) {
		return StateRemoved
	}
	return StateUntracked
}

// setState records s for path. Only live files are kept in the states map.
func (c *Coordinator) setState(path string, s FileState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	switch s {
	case StateRemoved:
		delete(c.states, path)
		c.removed.Add(path, struct{}{})
	case StateUntracked:
		delete(c.states, path)
		c.removed.Remove(path)
	default:
		c.states[path] = s
		c.removed.Remove(path)
	}
}

// settle drops the bookkeeping of a file once nothing is outstanding for it
func (c *Coordinator) settle(path string, ft *fileTrack) {
	if ft.timer == nil && !ft.inflight && !ft.due && c.files[path] == ft {
		delete(c.files, path)
	}
}

// tracked returns how many files have bookkeeping and how many have a live
// state. c.files is loop-owned: call it only after Run has returned.
func (c *Coordinator) tracked() (files, states int) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return len(c.files), len(c.states)
}

// track adjusts the count of outstanding work: queued events, armed debounce
// timers and passes in flight. WaitIdle returns when it reaches zero.
func (c *Coordinator) track(delta int) {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()

	before := c.busy
	c.busy += delta
	switch {
	case before == 0 && c.busy > 0:
		c.idle = make(chan struct{})
	case before > 0 && c.busy == 0:
		close(c.idle)
	}
}
