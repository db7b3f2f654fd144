// Package models defines the domain types for the Google Photos backup tool.
//
// The package contains two categories of types:
//
// 1. Catalog types: values decoded from the remote catalog and validated once at ingestion
//   - [MediaItem] : Photo or video with a time-limited content reference and optional [Metadata]
//   - [Album] : Remote album with title, declared item count and cover item
//   - [Date], [DateRange] : Inclusive calendar day ranges used to filter media listings
//
// 2. Ledger types: rows persisted by the repositories package
//   - [DownloadRecord] : One per remote item ever downloaded, with a metadata snapshot
//   - [AlbumMembership] : Album to item edge
//   - [RecordAlbums] : Record joined with album titles, consumed by the organizer
//   - [SyncRun] : History of sync invocations and their terminal [RunStatus]
package models
