package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/gphotos-backup/internal/models"
	"github.com/desertthunder/gphotos-backup/internal/tasks"
)

var (
	_ list.Item = albumItem{}
)

// albumItem wraps [models.Album] to implement [list.Item].
type albumItem struct {
	album  models.Album
	stored int
}

func (i albumItem) FilterValue() string { return i.album.Title }
func (i albumItem) Title() string {
	if i.album.Title == "" {
		return "(untitled)"
	}
	return i.album.Title
}
func (i albumItem) Description() string {
	desc := fmt.Sprintf("%d backed up", i.stored)
	if i.album.ItemCount != nil {
		desc = fmt.Sprintf("%d/%d backed up", i.stored, *i.album.ItemCount)
	}
	return fmt.Sprintf("%s • Albums/%s", desc, tasks.SanitizeTitle(i.album.Title))
}

// AlbumsModel is a browsable list of the albums recorded in the ledger.
type AlbumsModel struct {
	list   list.Model
	help   help.Model
	keys   keyMap
	width  int
	height int
}

// NewAlbumsModel creates the browser. counts maps album ids to the number of recorded members.
func NewAlbumsModel(albums []models.Album, counts map[string]int) *AlbumsModel {
	items := make([]list.Item, len(albums))
	for i, album := range albums {
		items[i] = albumItem{album: album, stored: counts[album.ID]}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("Albums (%d)", len(albums))
	l.Styles.Title = styles.title.UnsetMarginBottom()
	l.SetShowHelp(false)

	return &AlbumsModel{list: l, help: help.New(), keys: newKeyMap()}
}

func (m *AlbumsModel) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *AlbumsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() != list.Filtering && key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *AlbumsModel) View() string {
	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.filter, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.list.View(), m.help.ShortHelpView(helpKeys))
}
