// Package pbft's Replica and Client are plain pkg/evt.OnEvent implementations;
// wiring one up means constructing an evt.Session[ReplicaEvent] (or
// [ClientEvent]) around it, handing the session's SendEvent back via
// SetSelf, and driving inbound network bytes and pkg/netw/udp receive
// callbacks into the session with Send.
package pbft
