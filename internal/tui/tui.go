package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/davarch/ci-tracker/internal/domain"
)

// Source is the slice of the registry the UI works against.
type Source interface {
	Items() []domain.TrackedItem
	Refresh(ctx context.Context, key string) error
	Remove(key string) bool
}

type itemsMsg []domain.TrackedItem

type refreshedMsg struct {
	key string
	err error
}

type Model struct {
	ctx    context.Context
	src    Source
	items  []domain.TrackedItem
	cursor int
	width  int
	notice string
	failed bool
}

func NewModel(ctx context.Context, src Source) Model {
	return Model{ctx: ctx, src: src, items: src.Items()}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "r":
			if it, ok := m.selected(); ok {
				m.notice, m.failed = "refreshing "+it.Key+"…", false
				return m, m.refreshCmd(it.Key)
			}
		case "d":
			if it, ok := m.selected(); ok {
				m.src.Remove(it.Key)
				m.notice, m.failed = "removed "+it.Key, false
				m.setItems(m.src.Items())
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case itemsMsg:
		m.setItems(msg)

	case refreshedMsg:
		if msg.err != nil {
			m.notice, m.failed = msg.key+": "+msg.err.Error(), true
		} else {
			m.notice, m.failed = "refreshed "+msg.key, false
		}
		m.setItems(m.src.Items())
	}

	return m, nil
}

func (m Model) View() string {
	return renderView(m)
}

func (m Model) selected() (domain.TrackedItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return domain.TrackedItem{}, false
	}
	return m.items[m.cursor], true
}

func (m *Model) setItems(items []domain.TrackedItem) {
	m.items = items
	if m.cursor >= len(items) {
		m.cursor = len(items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) refreshCmd(key string) tea.Cmd {
	return func() tea.Msg {
		return refreshedMsg{key: key, err: m.src.Refresh(m.ctx, key)}
	}
}

// Run shows the UI until the user quits or ctx ends. Every value on changes
// redraws the item list.
func Run(ctx context.Context, src Source, changes <-chan struct{}) error {
	p := tea.NewProgram(NewModel(ctx, src), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					p.Quit()
					return
				}
				p.Send(itemsMsg(src.Items()))
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
