/*
Package worker runs the crypto offload pool shared by every replica and
client in this repository.

Signing and verification are CPU-bound enough that doing them inline on a
state machine's own event-processing goroutine would stall its message
queue under load. Pool spreads that work across a fixed goroutine set;
Lane gives each owner a private FIFO over the shared Pool so result events
land back on the owner's Session in the same order the jobs were
submitted, which the PBFT sign-then-broadcast sequence depends on.
*/
package worker
