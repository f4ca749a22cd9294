package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/murmesh/pkg/types"
)

var (
	bucketCommittedLog  = []byte("committed_log")
	bucketClientRecords = []byte("client_records")
)

// CommittedEntry is the durable record of one committed PBFT log slot:
// the batch of requests that was agreed on under OpNum and the reply the
// replica returned for each, persisted so a restarted replica can replay
// its log instead of starting from an empty state. Requests and Replies
// are parallel slices, index i of one corresponding to index i of the
// other.
type CommittedEntry struct {
	OpNum    uint32
	Requests []types.Request
	Replies  []types.Reply
}

// ClientRecord is the durable at-most-once record for one client: the
// highest request number seen and the reply cached for it, the same
// pair pkg/pbft.Replica and pkg/unreplicated.Server keep in memory but
// here surviving a restart.
type ClientRecord struct {
	ClientID       types.ClientID
	LastRequestNum uint64
	CachedReply    *types.Reply
}

// Store persists a replica's committed log and per-client reply cache.
// A single BoltStore instance is safe for concurrent use from multiple
// goroutines, matching bbolt's own concurrency guarantees.
type Store interface {
	SaveCommittedEntry(entry CommittedEntry) error
	GetCommittedEntry(opNum uint32) (CommittedEntry, bool, error)
	LastCommittedOpNum() (uint32, bool, error)

	SaveClientRecord(record ClientRecord) error
	GetClientRecord(id types.ClientID) (ClientRecord, bool, error)

	Close() error
}

// BoltStore implements Store on top of bbolt: one file per replica, one
// bucket per collection, JSON-encoded values, exactly the shape the
// cluster-state store this package was adapted from uses for its own
// entities.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the database file
// <dataDir>/replica-<id>.db and ensures both buckets exist.
func NewBoltStore(dataDir string, replicaID types.ReplicaID) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, fmt.Sprintf("replica-%d.db", replicaID))

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCommittedLog, bucketClientRecords} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func opNumKey(opNum uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], opNum)
	return b[:]
}

func clientIDKey(id types.ClientID) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(id))
	return b[:]
}

// SaveCommittedEntry upserts entry under its op number.
func (s *BoltStore) SaveCommittedEntry(entry CommittedEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("storage: marshal committed entry %d: %w", entry.OpNum, err)
		}
		return tx.Bucket(bucketCommittedLog).Put(opNumKey(entry.OpNum), data)
	})
}

// GetCommittedEntry looks up the entry for opNum. ok is false if no
// entry has been committed at that op number yet.
func (s *BoltStore) GetCommittedEntry(opNum uint32) (CommittedEntry, bool, error) {
	var entry CommittedEntry
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCommittedLog).Get(opNumKey(opNum))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return CommittedEntry{}, false, fmt.Errorf("storage: get committed entry %d: %w", opNum, err)
	}
	return entry, found, nil
}

// LastCommittedOpNum returns the highest op number with a persisted
// entry, since big-endian keys sort numerically and bbolt's cursor
// walks buckets in key order. ok is false for an empty log.
func (s *BoltStore) LastCommittedOpNum() (uint32, bool, error) {
	var opNum uint32
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketCommittedLog).Cursor().Last()
		if k == nil {
			return nil
		}
		found = true
		opNum = binary.BigEndian.Uint32(k)
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("storage: last committed op num: %w", err)
	}
	return opNum, found, nil
}

// SaveClientRecord upserts record under its client id.
func (s *BoltStore) SaveClientRecord(record ClientRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("storage: marshal client record %d: %w", record.ClientID, err)
		}
		return tx.Bucket(bucketClientRecords).Put(clientIDKey(record.ClientID), data)
	})
}

// GetClientRecord looks up the record for id. ok is false if this
// client has never had a request recorded.
func (s *BoltStore) GetClientRecord(id types.ClientID) (ClientRecord, bool, error) {
	var record ClientRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketClientRecords).Get(clientIDKey(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return ClientRecord{}, false, fmt.Errorf("storage: get client record %d: %w", id, err)
	}
	return record, found, nil
}
