package pbft

import (
	"time"

	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// LogEntry accumulates one op num's progress through the three-phase
// protocol: the PrePrepare that opened the slot, the Prepare and Commit
// signatures collected against it, and whether it has been committed
// (executed against the application and replied to). OpenedAt records
// when the slot was opened, so the replica can report quorum latency
// once it executes.
type LogEntry struct {
	PrePrepare xcrypto.Verifiable[PrePrepare]
	Prepares   map[types.ReplicaID]xcrypto.Verifiable[Prepare]
	Commits    map[types.ReplicaID]xcrypto.Verifiable[Commit]
	Committed  bool
	OpenedAt   time.Time
}

// Log is a replica's growing record of every op num it has opened,
// indexed by op num starting at 1; index 0 is never used so OpNum can
// double as a 1-based slice index without an off-by-one at the origin.
type Log struct {
	entries []LogEntry
}

// NewLog returns an empty log with the unused zero slot pre-allocated.
func NewLog() *Log {
	return &Log{entries: make([]LogEntry, 1)}
}

// Get returns the entry at opNum, or false if opNum lies beyond every slot
// allocated so far. A slot that Open grew past without opening it is
// returned with ok true and a zero LogEntry (nil Prepares and Commits).
func (l *Log) Get(opNum uint32) (*LogEntry, bool) {
	if int(opNum) >= len(l.entries) {
		return nil, false
	}
	return &l.entries[opNum], true
}

// Open installs a PrePrepare at opNum, growing the log as needed. It is an
// error to open an op num that is already open.
func (l *Log) Open(opNum uint32, pp xcrypto.Verifiable[PrePrepare]) *LogEntry {
	for uint32(len(l.entries)) <= opNum {
		l.entries = append(l.entries, LogEntry{})
	}
	l.entries[opNum] = LogEntry{
		PrePrepare: pp,
		Prepares:   make(map[types.ReplicaID]xcrypto.Verifiable[Prepare]),
		Commits:    make(map[types.ReplicaID]xcrypto.Verifiable[Commit]),
		OpenedAt:   time.Now(),
	}
	return &l.entries[opNum]
}

// Len returns the number of slots the log has allocated, counting the
// unused zero slot: one more than the highest allocated op num.
func (l *Log) Len() uint32 {
	return uint32(len(l.entries))
}
