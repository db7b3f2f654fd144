// Package repositories implements the SQLite ledger behind sync and organize.
//
// The [Ledger] bundles one repository per table over a single connection:
//   - [DownloadRecordRepository] : One row per remote item ever downloaded. Upsert is the dedup primitive.
//   - [AlbumRepository] : Albums and insert-or-ignore membership edges
//   - [SyncStateRepository] : The resumable page cursor (last_page_token)
//   - [SyncRunRepository] : History of sync runs and their terminal state
//
// [Open] runs the embedded migrations before returning, so callers never see a partially created schema.
// Timestamps are stored as fixed width UTC text.
package repositories
