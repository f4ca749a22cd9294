/*
Package storage provides BoltDB-backed persistence for a PBFT replica's
committed log and per-client reply cache.

A replica keeps its authoritative state — the log entries it has
committed and the at-most-once record for every client it has served —
in memory during normal operation (see pkg/pbft.Log and
pkg/pbft.clientRecord). Store exists for the restart path: on startup a
replica can replay committed_log forward to rebuild its Log and reload
client_records to rebuild its dedup table, instead of rejoining the
group as if it had never run.

# Buckets

	committed_log:   big-endian uint32 op number -> CommittedEntry (JSON)
	client_records:  big-endian uint32 client id  -> ClientRecord (JSON)

Big-endian keys keep bbolt's cursor order numeric, which
LastCommittedOpNum relies on to find the replay starting point without
scanning the whole bucket.

# Usage

	store, err := storage.NewBoltStore(dataDir, replicaID)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.SaveCommittedEntry(storage.CommittedEntry{
		OpNum:    entry.OpNum,
		Requests: entry.PrePrepare.Message.Requests,
		Replies:  replies,
	}); err != nil {
		// ...
	}

	last, ok, err := store.LastCommittedOpNum()

One database file per replica (<dataDir>/replica-<id>.db), following the
same single-file-per-node layout the cluster-state store this package
was adapted from uses, so replicas never contend for a lock on each
other's state.
*/
package storage
