/*
Package storage provides the persistence primitives pcsd is built on.

Two kinds of state live on disk:

	┌──────────────────────── PCSD STATE ────────────────────────┐
	│                                                              │
	│  JSONFile[T]  (flat files, whole-document rewrite)          │
	│    pcs_users.conf   tokens + bootstrap user credentials     │
	│    clusters.conf    registered clusters {name, nodes}       │
	│                                                              │
	│  BoltStore    (bbolt, keyed records)                        │
	│    peers.db         node -> token for outbound calls        │
	└──────────────────────────────────────────────────────────────┘

# JSONFile

The flat files keep the schema other pcsd installations read: a single JSON
array rewritten in full on every change. JSONFile adds two things on top of a
plain read/write:

  - Atomic replacement. A write goes to a temp file in the same directory, is
    fsynced, then renamed over the target. A crash leaves either the old or
    the new document, never a torn one.
  - Writer serialization. Save and Update hold a per-file mutex. Update runs
    the whole read-modify-write cycle under that lock, so two requests adding
    tokens at the same moment both land instead of one overwriting the other.

Reads are lock free. LoadOrEmpty implements the fail-open policy shared by the
credential store and the cluster registry: a missing, unreadable or corrupt
file is treated as an empty document and logged, never returned to callers.

	tokens := storage.NewJSONFile[[]record](cfg.TokensFile)
	err := tokens.Update(func(recs []record) ([]record, error) {
		return append(recs, rec), nil
	})

# BoltStore

Peer tokens are looked up per node on every outbound call, so they live in a
bbolt bucket keyed by node name instead of a flat list. Values are JSON
encoded Peer records. BoltStore.Token satisfies the RPC client's token source
interface directly.
*/
package storage
