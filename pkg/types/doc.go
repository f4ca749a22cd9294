/*
Package types defines the core data structures shared by the unreplicated
baseline, the PBFT replica protocol, and the model-checking search engine.

Addresses distinguish replicas from clients (Addr), and Request/Reply carry
opaque application operations (see pkg/app) through the protocol layer. Both
implement xcrypto.DigestHash so they can be signed and digested identically
whether the byte stream came from a live run or a replayed search trace.
*/
package types
