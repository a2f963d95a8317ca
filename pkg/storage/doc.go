/*
Package storage is the LocalIndex: BoltDB-backed persistence for the
sync engine's client-side state.

Buckets:

  - path_mappings: path -> LocalMapping, the working tree's view of which
    server note backs each local file.
  - mappings_by_note: note_id -> path, a secondary index so a server-side
    change can be resolved to a local path without a full scan.
  - notes: note_id -> Note, a cache of the last-seen server record, used
    for conflict detection without re-fetching ciphertext.
  - meta: flat key/value bookkeeping, e.g. last_sync_time.
  - auth: the current access/refresh token pair and its expiry.

MoveMapping is the one operation that must be atomic across two buckets:
a rename has to relocate the path key and repoint the note_id index in a
single transaction, or a concurrent reconciliation cycle could observe
the note as both vanished and newly created.
*/
package storage
