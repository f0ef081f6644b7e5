package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/varalys/diego/internal/report"
	"github.com/varalys/diego/internal/types"
)

var (
	tableBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))

	detailPaneBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("7"))

	emptyTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Align(lipgloss.Center)

	popupStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(1, 4)

	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cachedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const (
	detectionHelp = "q: quit | ?: help | j/k: navigate | /: search | f: failed only | y: copy result | p: copy path | r: rescan"
	emptyHelp     = "q: quit | r: rescan"
)

// statusText returns plain text for a detection's outcome (ANSI codes break
// table truncation).
func statusText(d types.Detection) string {
	switch {
	case d.Failed():
		return "FAILED"
	case d.Cached:
		return "CACHED"
	default:
		return "OK"
	}
}

// summary is the first non-empty line of a result, used in table rows.
func summary(d types.Detection) string {
	if d.Failed() {
		return d.Error
	}
	for _, line := range strings.Split(d.Result, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// RescanFunc re-runs the scan that produced the current detections.
type RescanFunc func() ([]types.Detection, error)

// Model browses scan detections: a table of files above a viewport holding
// the selected file's full engine result.
type Model struct {
	table      table.Model
	viewport   viewport.Model
	spinner    spinner.Model
	detections []types.Detection
	filtered   []types.Detection // nil when no filter is active
	root       string
	color      bool
	quitting   bool
	ready      bool // terminal dimensions are known
	scanning   bool
	showEmpty  bool
	showHelp   bool
	height     int
	width      int
	rescanFunc RescanFunc

	lastScanTime  time.Time
	statusMessage string
	statusTimeout *time.Time

	searchMode  bool
	searchInput textinput.Model
	searchQuery string
	failedOnly  bool
}

// Options tune a detections Model.
type Options struct {
	// Root is shown in the header.
	Root string
	// Color enables syntax highlighting of structured results.
	Color bool
	// ScannedAt is the time the detections were produced. Zero means now.
	ScannedAt time.Time
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("15")).
		Bold(true).
		Padding(0, 1).
		Align(lipgloss.Left)
	s.Selected = lipgloss.NewStyle().
		Foreground(lipgloss.Color("232")).
		Background(lipgloss.Color("208")).
		Bold(true).
		Padding(0, 1)
	s.Cell = lipgloss.NewStyle().
		Padding(0, 1)
	t.SetStyles(s)
	return t
}

// NewModel initializes a detections browser. Detections are shown sorted by
// path.
func NewModel(dets []types.Detection, rescan RescanFunc, opts Options) Model {
	// Line spinner avoids Braille characters that render poorly on some terminals
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	ti := textinput.New()
	ti.Placeholder = "Search path, type or result..."
	ti.CharLimit = 100
	ti.Width = 50
	ti.Prompt = "/ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))

	scanned := opts.ScannedAt
	if scanned.IsZero() {
		scanned = time.Now()
	}
	m := Model{
		table: newTable([]table.Column{
			{Title: "Status", Width: 8},
			{Title: "Type", Width: 10},
			{Title: "Path", Width: 40},
			{Title: "Result", Width: 35},
		}),
		spinner:      sp,
		searchInput:  ti,
		root:         opts.Root,
		color:        opts.Color,
		rescanFunc:   rescan,
		lastScanTime: scanned,
	}
	m.setDetections(dets)
	return m
}

func (m *Model) setDetections(dets []types.Detection) {
	sorted := append([]types.Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	m.detections = sorted
	m.applyFilters()
	if len(m.detections) == 0 {
		m.statusMessage = emptyHelp
	} else {
		m.statusMessage = detectionHelp
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

type detectionsMsg []types.Detection

type statusMsg string

func (m Model) rescan() tea.Cmd {
	fn := m.rescanFunc
	return func() tea.Msg {
		if fn == nil {
			return statusMsg("Rescan not available")
		}
		dets, err := fn()
		if err != nil {
			return statusMsg(fmt.Sprintf("Scan error: %v", err))
		}
		return detectionsMsg(dets)
	}
}

func (m *Model) applyFilters() {
	if m.searchQuery == "" && !m.failedOnly {
		m.filtered = nil
		m.rebuildTableRows()
		return
	}
	query := strings.ToLower(m.searchQuery)
	filtered := []types.Detection{}
	for _, d := range m.detections {
		if m.failedOnly && !d.Failed() {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(d.Path), query) &&
			!strings.Contains(strings.ToLower(d.FileType), query) &&
			!strings.Contains(strings.ToLower(d.Result), query) {
			continue
		}
		filtered = append(filtered, d)
	}
	m.filtered = filtered
	m.rebuildTableRows()
}

func (m *Model) clearFilters() {
	m.searchQuery = ""
	m.failedOnly = false
	m.searchInput.SetValue("")
	m.applyFilters()
}

func (m *Model) displayDetections() []types.Detection {
	if m.filtered != nil {
		return m.filtered
	}
	return m.detections
}

func (m *Model) rebuildTableRows() {
	dets := m.displayDetections()
	rows := make([]table.Row, len(dets))
	for i, d := range dets {
		rows[i] = table.Row{statusText(d), d.FileType, d.Path, summary(d)}
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(dets) {
		m.table.SetCursor(0)
	}
	m.showEmpty = len(dets) == 0
	m.updateViewportContent()
}

// selected returns the detection under the cursor, or nil.
func (m Model) selected() *types.Detection {
	dets := m.displayDetections()
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(dets) {
		return nil
	}
	return &dets[idx]
}

func (m *Model) updateViewportContent() {
	d := m.selected()
	if d == nil || !m.ready {
		m.viewport.SetContent("")
		return
	}
	m.viewport.SetContent(m.detailContent(*d))
	m.viewport.GotoTop()
}

func (m Model) detailContent(d types.Detection) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(d.Path) + "\n\n")
	field := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s %s\n", keyStyle.Render(k+":"), v)
		}
	}
	field("Mode", string(d.Mode))
	field("Size", fmt.Sprintf("%d bytes", d.Size))
	field("Type", d.FileType)
	field("Flags", d.FlagSet)
	field("Database", d.Database)
	if d.Cached {
		field("Source", cachedStyle.Render("cache"))
	}
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field(k, d.Metadata[k])
	}
	b.WriteString("\n")
	if d.Failed() {
		b.WriteString(failedStyle.Render("Error: "+d.Error) + "\n")
		return b.String()
	}
	result := d.Result
	if m.color {
		result = report.Highlight(result, d.Flags)
	}
	b.WriteString(result)
	return b.String()
}

func (m *Model) setStatus(msg string, d time.Duration) {
	timeout := time.Now().Add(d)
	m.statusTimeout = &timeout
	m.statusMessage = msg
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}

		if m.searchMode {
			switch msg.String() {
			case "enter":
				m.searchQuery = m.searchInput.Value()
				m.searchMode = false
				m.searchInput.Blur()
				return m, nil
			case "esc":
				m.searchMode = false
				m.searchInput.Blur()
				m.searchInput.SetValue(m.searchQuery)
				m.applyFilters()
				return m, nil
			default:
				m.searchInput, cmd = m.searchInput.Update(msg)
				m.searchQuery = m.searchInput.Value()
				m.applyFilters()
				return m, cmd
			}
		}

		if m.scanning {
			if msg.String() == "ctrl+c" {
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "?":
			m.showHelp = true
			return m, nil
		case "/":
			if len(m.detections) > 0 {
				m.searchMode = true
				m.searchInput.SetValue(m.searchQuery)
				m.searchInput.Focus()
				return m, textinput.Blink
			}
		case "f":
			m.failedOnly = !m.failedOnly
			m.applyFilters()
			if m.failedOnly {
				m.setStatus("Showing failed scans only (Esc to clear)", 3*time.Second)
			} else {
				m.setStatus("Showing all scans", 3*time.Second)
			}
			return m, nil
		case "esc":
			if m.searchQuery != "" || m.failedOnly {
				m.clearFilters()
				m.setStatus("Filters cleared", 3*time.Second)
				return m, nil
			}
		case "r":
			m.scanning = true
			return m, tea.Batch(m.spinner.Tick, m.rescan())
		case "y":
			if !m.showEmpty {
				return m, m.copyResultToClipboard()
			}
		case "p":
			if !m.showEmpty {
				return m, m.copyPathToClipboard()
			}
		case "down", "j", "up", "k", "g", "G", "home", "end":
			if !m.showEmpty {
				m.table, cmd = m.table.Update(msg)
				m.updateViewportContent()
				return m, cmd
			}
			return m, nil
		case "pgdown", "pgup", "ctrl+d", "ctrl+u":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		usableWidth := m.width - 10
		statusWidth, typeWidth := 8, 10
		remaining := usableWidth - statusWidth - typeWidth
		pathWidth := remaining / 2
		resultWidth := remaining - pathWidth
		if pathWidth < 20 {
			pathWidth = 20
		}
		if resultWidth < 20 {
			resultWidth = 20
		}
		cols := m.table.Columns()
		cols[0].Width = statusWidth
		cols[1].Width = typeWidth
		cols[2].Width = pathWidth
		cols[3].Width = resultWidth
		m.table.SetColumns(cols)

		tableHeight, viewportHeight := paneHeights(m.height)
		m.table.SetWidth(m.width)
		m.table.SetHeight(tableHeight)
		if m.viewport.Height == 0 {
			m.viewport = viewport.New(m.width, viewportHeight)
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.updateViewportContent()

	case detectionsMsg:
		m.scanning = false
		m.lastScanTime = time.Now()
		m.setDetections(msg)
		m.setStatus(fmt.Sprintf("Rescan complete: %d files", len(msg)), 3*time.Second)

	case statusMsg:
		m.scanning = false
		m.setStatus(string(msg), 3*time.Second)

	case spinner.TickMsg:
		var spinCmd tea.Cmd
		m.spinner, spinCmd = m.spinner.Update(msg)
		if m.statusTimeout != nil && time.Now().After(*m.statusTimeout) {
			m.statusTimeout = nil
			if m.showEmpty {
				m.statusMessage = emptyHelp
			} else {
				m.statusMessage = detectionHelp
			}
		}
		return m, spinCmd
	}
	return m, nil
}

// paneHeights splits the terminal between the table and the detail pane.
func paneHeights(height int) (tableHeight, viewportHeight int) {
	statsHeaderHeight := 1
	available := height - lipgloss.Height(statusStyle.Render("")) - statsHeaderHeight
	tableHeight = int(float64(available) * 0.45)
	viewportHeight = available - tableHeight - detailPaneBorderStyle.GetVerticalFrameSize() - 1
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	return tableHeight, viewportHeight
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}
	if m.scanning {
		box := popupStyle.
			Width(55).
			Align(lipgloss.Center).
			Render(fmt.Sprintf("%s  Rescanning...\n\nPlease wait", m.spinner.View()))
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}
	if m.showHelp {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, popupStyle.Render(helpText))
	}

	dets := m.displayDetections()
	var failed, cached int
	for _, d := range dets {
		switch {
		case d.Failed():
			failed++
		case d.Cached:
			cached++
		}
	}
	stats := fmt.Sprintf("%s  |  Files: %-4d  |  %s %-4d  |  %s %-4d  |  %s %-4d",
		m.root, len(dets),
		okStyle.Render("OK:"), len(dets)-failed-cached,
		cachedStyle.Render("Cached:"), cached,
		failedStyle.Render("Failed:"), failed)
	if m.filtered != nil {
		var parts []string
		if m.searchQuery != "" {
			parts = append(parts, fmt.Sprintf("search:'%s'", m.searchQuery))
		}
		if m.failedOnly {
			parts = append(parts, "failed")
		}
		stats += fmt.Sprintf("  [FILTER: %s, %d/%d]", strings.Join(parts, ", "), len(dets), len(m.detections))
	}

	var detail string
	if len(dets) == 0 {
		emptyMsg := "No files were scanned.\n\nPress 'r' to rescan"
		if len(m.detections) > 0 {
			emptyMsg = "No files match filter.\n\nPress 'Esc' to clear filter"
		}
		detail = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, emptyTextStyle.Render(emptyMsg))
	} else {
		detail = m.viewport.View()
	}

	right := fmt.Sprintf("Scanned: %s ago", formatDuration(time.Since(m.lastScanTime)))
	var bottom string
	if m.searchMode {
		bottom = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("15")).
			Width(m.width).
			Padding(0, 1).
			Render(m.searchInput.View() + fmt.Sprintf(" (%d matches)", len(dets)))
	} else {
		bottom = statusBar(m.width, m.statusMessage, right)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		statsHeader(m.width, stats),
		tableBorderStyle.Width(m.width).Height(m.table.Height()).Render(m.table.View()),
		detailPaneBorderStyle.Width(m.width).Height(m.viewport.Height).Render(detail),
		bottom,
	)
}

func statsHeader(width int, content string) string {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 2).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("237")).
		Render(content)
}

func statusBar(width int, left, right string) string {
	spacer := width - 4 - lipgloss.Width(left) - lipgloss.Width(right)
	if spacer < 1 {
		spacer = 1
	}
	content := left
	if right != "" {
		content += strings.Repeat(" ", spacer) + right
	}
	return statusStyle.Width(width).Padding(0, 2).Render(content)
}

const helpText = `Navigation
  j/k, up/down   move between files
  g/G            first / last file
  ctrl+d/ctrl+u  scroll the result pane

Filter
  /              search path, type or result
  f              toggle failed scans only
  esc            clear filters

Actions
  y              copy the full engine result
  p              copy the file path
  r              rescan
  q              quit

Press any key to close`
