// Package tasks runs the backup passes with real-time progress reporting.
//
// # Core Operations
//
//  1. [SyncEngine.Run] : one-way Google Photos → local disk sync
//     - Lists every album and indexes which items belong to which album
//     - Resumes the date-range scan from the cursor saved in the ledger
//     - Skips items already in the ledger, downloads the rest through [MediaStore]
//     - Records album memberships for every item seen, downloaded or not
//     - Saves the cursor after each fully processed page and clears it after the last
//
//  2. [Organizer.Organize] : arranges the backup directory
//     - Moves flat files into YYYY-MM (or Unknown_Date) buckets
//     - Creates Albums/<title>/<filename> links into the buckets
//
//  3. [Verifier.Verify] : read-only check of every ledger record against disk
//
// # States
//
// A sync moves through [State] values:
//
//	Idle → FetchingAlbumIndex → ScanningMediaPages → ProcessingPage → PageComplete → ... → ScanComplete → Completed
//
// and ends in one of Completed, Interrupted or Failed. Cancelling the context is cooperative: the item
// being processed is written and recorded, the cursor of the unfinished page is kept, and the run ends
// Interrupted. A page that cannot be listed clears the cursor and fails the run. Any ledger error
// (wrapping shared.ErrLedgerUnavailable) is fatal.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
