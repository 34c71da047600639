package tray

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/lineout/internal/config"
	"github.com/petems/lineout/internal/devices"
	"github.com/rs/zerolog"
)

// Controller is what the menu drives. *app.App satisfies it.
type Controller interface {
	Toggle()
	SelectInput(id string)
	SelectOutput(id string)
	Refresh()
	SetListenOnLaunch(on bool)
}

// menuItem is the part of *systray.MenuItem that render drives.
type menuItem interface {
	SetTitle(title string)
	Check()
	Uncheck()
	Enable()
	Disable()
}

// UI is the menu bar front end. Its Show* methods are called from the app
// goroutine and may arrive before systray is ready; the latest state is kept
// and applied once the menu exists.
type UI struct {
	ctl     Controller
	cfg     *config.Config
	version string
	commit  string
	logPath string
	log     zerolog.Logger

	mu            sync.Mutex
	ready         bool
	inputs        devices.List
	outputs       devices.List
	followDefault bool
	left          int
	right         int
	listening     bool
	lastErr       error

	setTitle func(string)

	// Menu items
	mStatus         menuItem
	mListen         menuItem
	mInputs         *deviceMenu
	mOutputs        *deviceMenu
	mListenOnLaunch *systray.MenuItem
}

func New(ctl Controller, cfg *config.Config, version, commit, logPath string, log zerolog.Logger) *UI {
	return &UI{
		ctl:      ctl,
		cfg:      cfg,
		version:  version,
		commit:   commit,
		logPath:  logPath,
		log:      log,
		setTitle: systray.SetTitle,
	}
}

// Run blocks on the systray event loop, which must own the main thread.
// onStart runs once the menu is built; onStop runs when the tray exits.
func (u *UI) Run(onStart, onStop func()) {
	systray.Run(func() {
		u.onReady()
		go onStart()
	}, onStop)
}

// SetController sets the controller after construction, since the app
// needs the UI as its view first.
func (u *UI) SetController(ctl Controller) {
	u.ctl = ctl
}

// Quit ends the systray loop from any goroutine.
func (u *UI) Quit() {
	systray.Quit()
}

func (u *UI) onReady() {
	systray.SetTooltip("Audio input level meter")

	mStatus := systray.AddMenuItem("Idle", "")
	mStatus.Disable()
	mListen := systray.AddMenuItemCheckbox("Start Listening", "Meter the selected input", false)
	mListen.Disable()
	systray.AddSeparator()

	u.mInputs = newDeviceMenu(systray.AddMenuItem("Input", "Select the metered device"), "", u.ctl.SelectInput)
	u.mOutputs = newDeviceMenu(systray.AddMenuItem("Output", "Select the monitoring device"), "System Default", u.ctl.SelectOutput)
	mRefresh := systray.AddMenuItem("Refresh Devices", "Re-scan audio hardware")

	systray.AddSeparator()
	u.mListenOnLaunch = systray.AddMenuItemCheckbox("Listen on Launch", "Start listening when LineOut opens", u.cfg.ListenOnLaunch)
	mCopy := systray.AddMenuItem("Copy Device Info", "Copy the device lists to the clipboard")
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem(fmt.Sprintf("LineOut %s (%s)", u.version, u.commit), "")
	mAbout.Disable()
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.mu.Lock()
	u.mStatus, u.mListen = mStatus, mListen
	u.ready = true
	u.mu.Unlock()
	u.render()

	go u.handleEvents(mListen, mRefresh, mCopy, mLogs, mQuit)
}

func (u *UI) handleEvents(mListen, mRefresh, mCopy, mLogs, mQuit *systray.MenuItem) {
	for {
		select {
		case <-mListen.ClickedCh:
			u.ctl.Toggle()
		case <-mRefresh.ClickedCh:
			u.ctl.Refresh()
		case <-u.mListenOnLaunch.ClickedCh:
			u.toggleListenOnLaunch()
		case <-mCopy.ClickedCh:
			u.copyDeviceInfo()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// ShowInputs re-renders everything: the status line and whether listening
// can start both depend on the input list.
func (u *UI) ShowInputs(list devices.List) {
	u.mu.Lock()
	u.inputs = list
	u.mu.Unlock()
	u.render()
}

func (u *UI) ShowOutputs(list devices.List, followDefault bool) {
	u.mu.Lock()
	u.outputs, u.followDefault = list, followDefault
	u.mu.Unlock()
	u.render()
}

func (u *UI) ShowLevels(left, right int) {
	u.mu.Lock()
	u.left, u.right = left, right
	ready := u.ready
	u.mu.Unlock()
	if ready {
		u.setTitle(meterTitle(left, right, u.cfg.Meter.Scale, u.IsListening()))
	}
}

func (u *UI) ShowListening(listening bool) {
	u.mu.Lock()
	u.listening = listening
	if listening {
		u.lastErr = nil
	}
	u.mu.Unlock()
	u.render()
}

func (u *UI) ShowError(err error) {
	u.mu.Lock()
	u.lastErr = err
	u.mu.Unlock()
	u.render()
}

// IsListening reports the last state the app announced.
func (u *UI) IsListening() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.listening
}

// render applies the whole cached state to the menu.
func (u *UI) render() {
	u.mu.Lock()
	if !u.ready {
		u.mu.Unlock()
		return
	}
	inputs, outputs, followDefault := u.inputs, u.outputs, u.followDefault
	left, right, listening, lastErr := u.left, u.right, u.listening, u.lastErr
	u.mu.Unlock()

	u.setTitle(meterTitle(left, right, u.cfg.Meter.Scale, listening))
	u.mStatus.SetTitle(statusText(listening, inputs, lastErr))
	if listening {
		u.mListen.Check()
		u.mListen.SetTitle("Stop Listening")
	} else {
		u.mListen.Uncheck()
		u.mListen.SetTitle("Start Listening")
	}
	if inputs.Empty() {
		u.mListen.Disable()
	} else {
		u.mListen.Enable()
	}
	if u.mInputs != nil {
		u.mInputs.show(inputs, false)
	}
	if u.mOutputs != nil {
		u.mOutputs.show(outputs, followDefault)
	}
}

func (u *UI) toggleListenOnLaunch() {
	on := !u.mListenOnLaunch.Checked()
	if on {
		u.mListenOnLaunch.Check()
	} else {
		u.mListenOnLaunch.Uncheck()
	}
	u.ctl.SetListenOnLaunch(on)
	u.log.Info().Bool("enabled", on).Msg("Changed listen on launch")
}

func (u *UI) copyDeviceInfo() {
	u.mu.Lock()
	text := deviceInfo(u.inputs, u.outputs)
	u.mu.Unlock()

	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy device info")
		return
	}
	u.log.Info().Msg("Copied device info to clipboard")
}

func (u *UI) openLogs() {
	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}
	if err := exec.Command(opener, u.logPath).Start(); err != nil {
		u.log.Error().Err(err).Str("path", u.logPath).Msg("Failed to open logs")
	}
}

// deviceMenu is a submenu of device rows. systray cannot remove items, so
// rows are pooled: extra rows are hidden and reused on the next rebuild.
type deviceMenu struct {
	parent   *systray.MenuItem
	onSelect func(id string)

	// fixed is an optional first row selecting "" (the system default).
	fixed       *systray.MenuItem
	placeholder *systray.MenuItem

	mu    sync.Mutex
	items []*systray.MenuItem
	ids   []string
}

func newDeviceMenu(parent *systray.MenuItem, fixedTitle string, onSelect func(id string)) *deviceMenu {
	m := &deviceMenu{parent: parent, onSelect: onSelect}
	if fixedTitle != "" {
		m.fixed = parent.AddSubMenuItem(fixedTitle, "")
		go func() {
			for range m.fixed.ClickedCh {
				m.onSelect("")
			}
		}()
	}
	m.placeholder = parent.AddSubMenuItem("", "")
	m.placeholder.Disable()
	m.placeholder.Hide()
	return m
}

func (m *deviceMenu) show(list devices.List, followDefault bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := deviceRows(list)
	for len(m.items) < len(rows) {
		m.addItem()
	}

	if list.Empty() {
		m.placeholder.SetTitle(list.Placeholder())
		m.placeholder.Show()
	} else {
		m.placeholder.Hide()
	}

	fixedChecked, checked := checkState(list, m.fixed != nil, followDefault)
	if m.fixed != nil {
		if fixedChecked {
			m.fixed.Check()
		} else {
			m.fixed.Uncheck()
		}
	}

	m.ids = m.ids[:0]
	for i, item := range m.items {
		if i >= len(rows) {
			item.Hide()
			item.Uncheck()
			continue
		}
		m.ids = append(m.ids, rows[i].id)
		item.SetTitle(rows[i].title)
		if i == checked {
			item.Check()
		} else {
			item.Uncheck()
		}
		item.Show()
	}
}

// addItem must be called with m.mu held.
func (m *deviceMenu) addItem() {
	item := m.parent.AddSubMenuItem("", "")
	idx := len(m.items)
	m.items = append(m.items, item)

	go func() {
		for range item.ClickedCh {
			m.mu.Lock()
			var id string
			if idx < len(m.ids) {
				id = m.ids[idx]
			}
			m.mu.Unlock()
			if id != "" {
				m.onSelect(id)
			}
		}
	}()
}

type row struct {
	id       string
	title    string
	selected bool
}

func deviceRows(list devices.List) []row {
	rows := make([]row, len(list.Entries))
	for i, e := range list.Entries {
		rows[i] = row{id: e.ID, title: deviceTitle(e), selected: i == list.Selected}
	}
	return rows
}

// deviceTitle renders "Name (USB, default)".
func deviceTitle(e devices.Entry) string {
	var tags []string
	if label := e.Transport.Label(); label != "" {
		tags = append(tags, label)
	}
	if e.Default {
		tags = append(tags, "default")
	}
	if len(tags) == 0 {
		return e.Name
	}
	return fmt.Sprintf("%s (%s)", e.Name, strings.Join(tags, ", "))
}

// checkState picks which row carries the check mark: the fixed "System
// Default" row when following the default, otherwise the selected device.
// A device pinned by name stays checked even when it is also the default.
func checkState(list devices.List, hasFixed, followDefault bool) (fixedChecked bool, checked int) {
	if hasFixed && followDefault {
		return true, devices.NoSelection
	}
	return false, list.Selected
}

const (
	micGlyph   = "🎙"
	barOn      = "▮"
	barOff     = "▯"
	barDivider = "|"
)

// meterTitle renders the menu bar title. The left bar is mirrored so both
// channels grow outwards from the divider.
func meterTitle(left, right, scale int, listening bool) string {
	if !listening || scale <= 0 {
		return micGlyph
	}
	return fmt.Sprintf("%s %s%s%s", micGlyph, reverse(bar(left, scale)), barDivider, bar(right, scale))
}

func bar(level, scale int) string {
	level = max(0, min(level, scale))
	return strings.Repeat(barOn, level) + strings.Repeat(barOff, scale-level)
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func statusText(listening bool, inputs devices.List, err error) string {
	switch {
	case err != nil:
		return "Error: " + err.Error()
	case inputs.Empty():
		return inputs.Placeholder()
	case listening:
		d, _ := inputs.SelectedDevice()
		return "Listening to " + d.Name
	default:
		return "Idle"
	}
}

// deviceInfo is the plain text copied by "Copy Device Info".
func deviceInfo(inputs, outputs devices.List) string {
	var b strings.Builder
	for _, list := range []devices.List{inputs, outputs} {
		fmt.Fprintf(&b, "%s devices:\n", strings.ToUpper(list.Direction.String()[:1])+list.Direction.String()[1:])
		if list.Empty() {
			fmt.Fprintf(&b, "  (%s)\n", list.Placeholder())
			continue
		}
		for i, e := range list.Entries {
			marker := " "
			if i == list.Selected {
				marker = "*"
			}
			fmt.Fprintf(&b, "%s %s", marker, deviceTitle(e))
			if e.Channels > 0 {
				fmt.Fprintf(&b, " %dch", e.Channels)
			}
			if e.DefaultSampleRate > 0 {
				fmt.Fprintf(&b, " %.0fHz", e.DefaultSampleRate)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
