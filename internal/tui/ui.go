package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/hookall/internal/cliutil"
	"github.com/Paintersrp/hookall/internal/engine"
)

const (
	tableTitle          = "Targets"
	logsTitle           = "Output"
	filterPageName      = "filter"
	defaultLogRetention = 500
)

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLogs sets the maximum number of output lines retained per target.
func WithMaxLogs(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLogs = n
		}
	}
}

// WithFilter shows the process filter in the status line.
func WithFilter(filter string) Option {
	return func(u *UI) {
		u.processFilter = filter
	}
}

// UI is the interactive dashboard of attached targets backed by tview. Pressing
// q forwards a quit keystroke on Keys; the caller stops the UI once the
// supervisor has finished.
type UI struct {
	app    *tview.Application
	pages  *tview.Pages
	status *tview.TextView
	table  *tview.Table
	logs   *tview.TextView
	events chan engine.Event
	keys   chan rune
	redraw chan struct{}

	targets map[int]*targetState

	processFilter string
	banner        string
	visible       []int
	selected      int
	logsJSON      bool
	filter        string
	filterExpr    *regexp.Regexp
	logsFocused   bool
	maxLogs       int
	logsDirty     atomic.Bool

	mu sync.RWMutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type targetState struct {
	target    int
	childPID  int
	firstSeen time.Time
	lastEvent time.Time
	state     engine.EventType
	exitCode  int
	exited    bool
	message   string

	logs []cliutil.LogRecord
}

// New constructs a UI configured with the supplied options.
func New(opts ...Option) *UI {
	app := tview.NewApplication()
	ui := newUI(app)
	for _, opt := range opts {
		opt(ui)
	}

	ui.table.SetSelectionChangedFunc(func(row, column int) {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelection(row)
		ui.renderLogsLocked()
	})

	ui.mu.Lock()
	ui.renderStatusLocked()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

func newUI(app *tview.Application) *UI {
	status := tview.NewTextView().SetDynamicColors(true)

	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	logs := tview.NewTextView().SetDynamicColors(false).SetWrap(false)
	logs.SetBorder(true).SetTitle(logsTitle)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(status, 1, 0, false).
		AddItem(table, 0, 3, true).
		AddItem(logs, 0, 2, false)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	ui := &UI{
		app:     app,
		pages:   pages,
		status:  status,
		table:   table,
		logs:    logs,
		events:  make(chan engine.Event, 256),
		keys:    make(chan rune, 4),
		redraw:  make(chan struct{}, 1),
		targets: make(map[int]*targetState),
		maxLogs: defaultLogRetention,
		done:    make(chan struct{}),
	}

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)
	return ui
}

// EventSink exposes the channel where supervisor events should be delivered.
func (u *UI) EventSink() chan<- engine.Event {
	return u.events
}

// Keys delivers operator keystrokes meant for the supervisor.
func (u *UI) Keys() <-chan rune {
	return u.keys
}

// CloseEvents releases the event channel, allowing internal goroutines to exit cleanly.
func (u *UI) CloseEvents() {
	u.closeOnce.Do(func() {
		close(u.events)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming events until Stop is
// invoked or the provided context is cancelled. It returns only after
// CloseEvents has been called.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()
	go u.drawLoop(ctx)

	select {
	case <-u.done:
		// Stopped before the application loop started.
		u.wg.Wait()
		return nil
	default:
	}
	// app.Stop is a no-op until the screen exists, so a Stop that races the
	// start is repeated after the first draw.
	u.app.SetAfterDrawFunc(func(tcell.Screen) {
		select {
		case <-u.done:
			go u.app.Stop()
		default:
		}
	})
	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEvents(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Keep draining so senders never block on a stopped UI.
			for range u.events {
			}
			return
		case evt, ok := <-u.events:
			if !ok {
				return
			}
			updateLogs := u.applyEvent(evt)
			u.queueRefresh(updateLogs)
		case <-ticker.C:
			u.queueRefresh(false)
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	// tview stops the application on Ctrl-C unless the key is consumed here.
	if event.Key() == tcell.KeyCtrlC {
		u.requestQuit('q')
		return nil
	}
	if u.overlayFocused() {
		return event
	}
	switch event.Key() {
	case tcell.KeyEnter:
		u.toggleFocus()
		return nil
	case tcell.KeyUp, tcell.KeyDown:
		return event
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			u.requestQuit(event.Rune())
			return nil
		case '/':
			u.showFilterPrompt()
			return nil
		case 'j', 'J':
			u.toggleJSON()
			return nil
		}
	}
	return event
}

func (u *UI) overlayFocused() bool {
	switch u.app.GetFocus().(type) {
	case *tview.InputField, *tview.Button, *tview.Form, *tview.Modal:
		return true
	}
	return false
}

func (u *UI) requestQuit(r rune) {
	select {
	case u.keys <- r:
	default:
	}
	u.mu.Lock()
	u.banner = "Quitting all attached processes..."
	u.renderStatusLocked()
	u.mu.Unlock()
}

func (u *UI) toggleFocus() {
	if u.logsFocused {
		u.app.SetFocus(u.table)
	} else {
		u.app.SetFocus(u.logs)
	}
	u.logsFocused = !u.logsFocused
}

func (u *UI) toggleJSON() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.logsJSON = !u.logsJSON
	u.renderLogsLocked()
}

func (u *UI) showFilterPrompt() {
	u.mu.RLock()
	current := u.filter
	u.mu.RUnlock()

	input := tview.NewInputField().
		SetLabel("Regex filter: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			u.applyFilter(input.GetText())
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.table)
		}).
		AddButton("Cancel", func() {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.table)
		})

	form.SetBorder(true).SetTitle("Filter Targets")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)

	u.pages.AddPage(filterPageName, grid, true, true)
	u.app.SetFocus(input)
}

func (u *UI) applyFilter(expr string) {
	expr = strings.TrimSpace(expr)
	var re *regexp.Regexp
	if expr != "" {
		var err error
		re, err = regexp.Compile(expr)
		if err != nil {
			u.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
			return
		}
	}

	u.mu.Lock()
	u.filter = expr
	u.filterExpr = re
	u.mu.Unlock()
	u.queueRefresh(true)
}

func (u *UI) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.table)
		})

	u.pages.RemovePage(filterPageName)
	u.pages.AddPage(filterPageName, modal, true, true)
}

// applyEvent folds evt into the dashboard state and reports whether the log
// pane needs a redraw.
func (u *UI) applyEvent(evt engine.Event) bool {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if evt.Target == 0 {
		u.banner = formatEventMessage(evt)
		u.renderStatusLocked()
		return false
	}

	state := u.targets[evt.Target]
	if state == nil {
		state = &targetState{target: evt.Target, firstSeen: evt.Timestamp}
		u.targets[evt.Target] = state
	}
	state.lastEvent = evt.Timestamp
	if evt.ChildPID != 0 {
		state.childPID = evt.ChildPID
	}

	if evt.Type == engine.EventTypeLog {
		state.logs = append(state.logs, cliutil.NewLogRecord(evt))
		if len(state.logs) > u.maxLogs {
			trim := len(state.logs) - u.maxLogs
			state.logs = append([]cliutil.LogRecord(nil), state.logs[trim:]...)
		}
	} else {
		state.state = evt.Type
		if evt.Type == engine.EventTypeExited {
			state.exited = true
			state.exitCode = evt.ExitCode
		}
		state.message = formatEventMessage(evt)
	}

	return state.target == u.selected || u.selected == 0
}

// queueRefresh schedules a redraw without blocking. Requests made while one
// is pending are merged.
func (u *UI) queueRefresh(updateLogs bool) {
	if updateLogs {
		u.logsDirty.Store(true)
	}
	select {
	case u.redraw <- struct{}{}:
	default:
	}
}

// drawLoop is the only caller of QueueUpdateDraw, so a stopped application
// can never stall event consumption.
func (u *UI) drawLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.redraw:
			u.app.QueueUpdateDraw(func() {
				updateLogs := u.logsDirty.Swap(false)
				u.mu.Lock()
				defer u.mu.Unlock()
				u.refreshTableLocked()
				if updateLogs {
					u.renderLogsLocked()
				}
			})
		}
	}
}

func (u *UI) renderStatusLocked() {
	var b strings.Builder
	if u.processFilter != "" {
		fmt.Fprintf(&b, "[yellow]filter:[-] %s  ", u.processFilter)
	}
	if u.banner != "" {
		b.WriteString(tview.Escape(u.banner))
	} else {
		b.WriteString("q quit  / filter  j json  enter focus")
	}
	u.status.SetText(b.String())
}

func (u *UI) refreshTableLocked() {
	u.table.Clear()

	headers := []string{"TARGET", "PID", "STATE", "EXIT", "AGE", "MESSAGE"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(0, col, cell)
	}

	targets := make([]int, 0, len(u.targets))
	for target := range u.targets {
		if u.filterExpr != nil && !u.filterExpr.MatchString(strconv.Itoa(target)) {
			continue
		}
		targets = append(targets, target)
	}
	sort.Ints(targets)
	u.visible = targets

	if u.filter != "" {
		u.table.SetTitle(fmt.Sprintf("%s /%s/", tableTitle, u.filter))
	} else {
		u.table.SetTitle(tableTitle)
	}

	for row, target := range targets {
		state := u.targets[target]
		age := "-"
		if !state.firstSeen.IsZero() {
			age = time.Since(state.firstSeen).Truncate(time.Second).String()
		}
		pid := "-"
		if state.childPID != 0 {
			pid = strconv.Itoa(state.childPID)
		}
		exit := "-"
		if state.exited {
			exit = strconv.Itoa(state.exitCode)
		}
		message := state.message
		if len(message) > 80 {
			message = message[:77] + "..."
		}

		values := []string{
			strconv.Itoa(target),
			pid,
			formatState(state.state),
			exit,
			age,
			message,
		}
		for col, value := range values {
			cell := tview.NewTableCell(value)
			if col == 0 {
				cell = cell.SetReference(target)
			}
			if col == 2 {
				cell = cell.SetTextColor(stateColor(state.state))
			}
			u.table.SetCell(row+1, col, cell)
		}
	}

	u.ensureSelectionLocked()
}

func (u *UI) renderLogsLocked() {
	u.logs.Clear()
	var state *targetState
	if u.selected != 0 {
		state = u.targets[u.selected]
	}
	if state == nil {
		u.logs.SetTitle(logsTitle)
		return
	}

	u.logs.SetTitle(fmt.Sprintf("%s (pid %d)", logsTitle, state.target))

	for _, record := range state.logs {
		if !u.logsJSON {
			fmt.Fprintf(u.logs, "%s %-6s %s\n", record.Timestamp.Format(time.TimeOnly), record.Source, record.Message)
			continue
		}
		data, err := json.Marshal(record)
		if err != nil {
			fmt.Fprintf(u.logs, "{\"error\":\"%v\"}\n", err)
			continue
		}
		fmt.Fprintf(u.logs, "%s\n", data)
	}
	u.logs.ScrollToEnd()
}

func (u *UI) ensureSelectionLocked() {
	if len(u.visible) == 0 {
		u.selected = 0
		u.table.Select(0, 0)
		return
	}

	idx := -1
	for i, target := range u.visible {
		if target == u.selected {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = 0
		u.selected = u.visible[0]
	}
	u.table.Select(idx+1, 0)
}

func (u *UI) syncSelection(row int) {
	if row <= 0 || row-1 >= len(u.visible) {
		return
	}
	u.selected = u.visible[row-1]
}

func formatEventMessage(evt engine.Event) string {
	msg := evt.Message
	if evt.Err != nil {
		errText := evt.Err.Error()
		switch {
		case msg == "":
			msg = errText
		case !strings.Contains(msg, errText):
			msg = msg + ": " + errText
		}
	}
	if evt.Reason != "" && evt.Reason != engine.ReasonInitialLaunch {
		if msg == "" {
			return evt.Reason
		}
		msg = fmt.Sprintf("%s (%s)", msg, evt.Reason)
	}
	return msg
}

func formatState(t engine.EventType) string {
	if t == "" {
		return "-"
	}
	s := strings.ReplaceAll(string(t), "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

func stateColor(t engine.EventType) tcell.Color {
	switch t {
	case engine.EventTypeAttached:
		return tcell.ColorGreen
	case engine.EventTypeExited, engine.EventTypeKilled:
		return tcell.ColorGray
	case engine.EventTypeError:
		return tcell.ColorRed
	default:
		return tcell.ColorDefault
	}
}
