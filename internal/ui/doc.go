// Package ui implements the terminal interfaces using bubbletea's Elm architecture.
//
// Two models are provided:
//  1. [SyncModel] : live view of a running sync with a spinner, per-page progress bar, counters and recent items
//  2. [AlbumsModel] : filterable list of ledger albums with how many of their items are backed up
//
// Both implement bubbletea's standard Init/Update/View pattern.
// Progress updates flow through a channel from the [tasks.SyncEngine], providing non-blocking status reporting.
// Pressing q or ctrl+c during a sync cancels its context, so the run ends Interrupted once the current item is recorded;
// a second press leaves the program.
//
// Keyboard navigation uses vim-style bindings (j/k, /, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
