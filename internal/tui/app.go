// internal/tui/app.go
//
// This is the module console. It uses bubbletea, which follows The Elm
// Architecture:
//
// 1. Model: the loaded modules and the last action result
// 2. Update: key presses become lifecycle commands, results become messages
// 3. View: renders the module list, the log tail and the status line
//
// Lifecycle calls run inside tea.Cmds so a slow interpreter never blocks the
// render loop.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ComputerNetworkManager/Shared/internal/logging"
	"github.com/ComputerNetworkManager/Shared/internal/module"
	"github.com/ComputerNetworkManager/Shared/plugins"
)

const logTailLines = 8

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogger shows the tail of the project log under the module list and
// records console actions in it.
func WithLogger(logger *logging.Logger) AppOption {
	return func(a *App) {
		a.logger = logger
	}
}

// WithContext sets the context passed to lifecycle calls.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// WithDiscovery enables the load key: modules found under root (minus the
// exclude globs) are loaded on demand.
func WithDiscovery(root string, exclude []string) AppOption {
	return func(a *App) {
		a.modulesDir = root
		a.exclude = exclude
	}
}

// modulesRefreshedMsg carries a fresh snapshot of the manager.
type modulesRefreshedMsg struct {
	items []list.Item
}

// actionDoneMsg reports the outcome of a lifecycle key.
type actionDoneMsg struct {
	status string
	err    error
}

// moduleItem implements list.Item for one loaded module.
type moduleItem struct {
	mod  *module.Module
	desc module.Descriptor
}

func (i moduleItem) Title() string {
	return fmt.Sprintf("%s %s", i.desc.Name, i.desc.Version)
}

func (i moduleItem) Description() string {
	parts := []string{i.desc.Language, i.mod.State()}
	if len(i.desc.Dependencies) > 0 {
		parts = append(parts, "needs "+strings.Join(i.desc.Dependencies, ", "))
	}
	if len(i.desc.SoftDependencies) > 0 {
		parts = append(parts, "wants "+strings.Join(i.desc.SoftDependencies, ", "))
	}
	return strings.Join(parts, " · ")
}

func (i moduleItem) FilterValue() string { return i.desc.Name }

// App is the console model.
type App struct {
	manager    *module.Manager
	ctx        context.Context
	logger     *logging.Logger
	modulesDir string
	exclude    []string

	modules   list.Model
	statusMsg string
	err       error

	width  int
	height int
}

// NewApp creates a console bound to mgr.
func NewApp(mgr *module.Manager, opts ...AppOption) *App {
	modules := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	modules.Title = "MODULES"
	modules.SetShowStatusBar(false)
	modules.SetFilteringEnabled(false)
	modules.SetShowHelp(false)

	app := &App{
		manager:   mgr,
		ctx:       context.Background(),
		modules:   modules,
		statusMsg: "s start · x stop · u unload · l load · r refresh · q quit",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.refresh()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.modules.SetSize(max(0, msg.Width-6), max(0, msg.Height-logTailLines-8))
		return a, nil

	case modulesRefreshedMsg:
		cmd := a.modules.SetItems(msg.items)
		return a, cmd

	case actionDoneMsg:
		a.err = msg.err
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("✗ %v", msg.err)
			a.logger.Warn("Console: %v", msg.err)
		} else {
			a.statusMsg = "✓ " + msg.status
			a.logger.Info("Console: %s", msg.status)
		}
		return a, a.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			a.statusMsg = "Refreshed"
			return a, a.refresh()
		case "l":
			return a, a.loadPending()
		case "s":
			return a, a.lifecycle("Started", a.manager.Start)
		case "x":
			return a, a.lifecycle("Stopped", a.manager.Stop)
		case "u":
			return a, a.lifecycle("Unloaded", a.manager.Unload)
		}
	}

	var cmd tea.Cmd
	a.modules, cmd = a.modules.Update(msg)
	return a, cmd
}

func (a *App) refresh() tea.Cmd {
	mgr := a.manager
	return func() tea.Msg {
		mods := mgr.All()
		items := make([]list.Item, 0, len(mods))
		for _, mod := range mods {
			items = append(items, moduleItem{mod: mod, desc: mod.Descriptor()})
		}
		return modulesRefreshedMsg{items: items}
	}
}

func (a *App) selected() (*module.Module, bool) {
	item, ok := a.modules.SelectedItem().(moduleItem)
	if !ok {
		return nil, false
	}
	return item.mod, true
}

func (a *App) lifecycle(verb string, op func(context.Context, *module.Module) error) tea.Cmd {
	mod, ok := a.selected()
	if !ok {
		a.statusMsg = "No module selected"
		return nil
	}
	ctx := a.ctx
	return func() tea.Msg {
		if err := op(ctx, mod); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("%s %s", verb, mod.Name())}
	}
}

func (a *App) loadPending() tea.Cmd {
	if strings.TrimSpace(a.modulesDir) == "" {
		a.statusMsg = "Module discovery is not configured"
		return nil
	}
	ctx, mgr, root, exclude := a.ctx, a.manager, a.modulesDir, a.exclude
	return func() tea.Msg {
		before := len(mgr.All())
		found, discoverErr := plugins.Discover(root, exclude, nil)
		_, loadErr := plugins.LoadAll(ctx, mgr, found)
		status := fmt.Sprintf("Loaded %d new module(s) from %s", len(mgr.All())-before, root)
		if err := errors.Join(discoverErr, loadErr); err != nil {
			return actionDoneMsg{status: status, err: err}
		}
		return actionDoneMsg{status: status}
	}
}

// View renders the current state to a string.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ CNM")

	var body string
	if len(a.modules.Items()) == 0 {
		body = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Render("No modules loaded. Press l to load modules from disk.")
	} else {
		body = a.modules.View()
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, a.width-4)).
		Render(body)

	sections := []string{header, box}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	statusColor := lipgloss.Color("#888888")
	if a.err != nil {
		statusColor = lipgloss.Color("#FF6B6B")
	}
	footer := lipgloss.NewStyle().
		Foreground(statusColor).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderLogPanel() string {
	lines := a.logger.Tail(logTailLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logger.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s", fileName))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}
