package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/gphotos-backup/internal/tasks"
)

var (
	_ tea.Msg = progressMsg{}
	_ tea.Msg = syncDoneMsg{}
)

// progressMsg carries one [tasks.ProgressUpdate] from the running sync.
type progressMsg tasks.ProgressUpdate

// syncDoneMsg is sent once the sync goroutine has returned.
type syncDoneMsg struct {
	result *tasks.SyncResult
	err    error
}
