// Package types defines the core wire-level data model shared by the
// unreplicated baseline, the PBFT protocol, and the model-checking search
// engine: addresses, client requests and replies.
package types

import "strconv"

// ReplicaID identifies one member of the replica group, 0-indexed, stable
// for the lifetime of a deployment.
type ReplicaID uint8

// ClientID identifies one client session. Clients pick their own id at
// startup (e.g. a random uint32) and it never changes.
type ClientID uint32

// Addr is the destination of a SendMessage call: either a specific
// replica or a specific client. Exactly one of the two fields is
// meaningful, selected by IsReplica.
type Addr struct {
	IsReplica bool
	Replica   ReplicaID
	Client    ClientID
}

// ReplicaAddr builds an Addr naming a replica.
func ReplicaAddr(id ReplicaID) Addr { return Addr{IsReplica: true, Replica: id} }

// ClientAddr builds an Addr naming a client.
func ClientAddr(id ClientID) Addr { return Addr{IsReplica: false, Client: id} }

func (a Addr) String() string {
	if a.IsReplica {
		return "replica:" + strconv.FormatUint(uint64(a.Replica), 10)
	}
	return "client:" + strconv.FormatUint(uint64(a.Client), 10)
}
