// Package tray shows the capture host in the system tray using getlantern/systray.
package tray

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/getlantern/systray"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID       int
	Title    string
	Callback func()
	item     *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	mu      sync.Mutex
	title   string
	tooltip string
	items   []*MenuItem
	readyCh chan struct{}
	quitCh  chan struct{}
	onExit  func()

	stopRequested atomic.Bool
	quit          func()
}

// New creates a tray entry with the given title and tooltip.
func New(title, tooltip string) *Tray {
	return &Tray{
		title:   title,
		tooltip: tooltip,
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
		quit:    systray.Quit,
	}
}

// AddMenuItem adds a menu item and returns its ID. Items must be added
// before Run.
func (t *Tray) AddMenuItem(title string, callback func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := len(t.items)
	t.items = append(t.items, &MenuItem{
		ID:       id,
		Title:    title,
		Callback: callback,
	})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil) // nil indicates separator
}

// OnExit registers fn to run after the tray loop ends.
func (t *Tray) OnExit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExit = fn
}

// SetStatus replaces the tooltip, for example with the hook state.
func (t *Tray) SetStatus(tooltip string) {
	t.mu.Lock()
	t.tooltip = tooltip
	t.mu.Unlock()
	if t.ready() {
		systray.SetTooltip(tooltip)
	}
}

// SetItemTitle changes the label of a menu item.
func (t *Tray) SetItemTitle(id int, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if mi := t.itemLocked(id); mi != nil {
		mi.Title = title
		if mi.item != nil {
			mi.item.SetTitle(title)
		}
	}
}

// SetItemChecked sets the checked state of a menu item
func (t *Tray) SetItemChecked(id int, checked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mi := t.itemLocked(id)
	if mi == nil || mi.item == nil {
		return
	}
	if checked {
		mi.item.Check()
	} else {
		mi.item.Uncheck()
	}
}

// Ready is closed once the icon is visible.
func (t *Tray) Ready() <-chan struct{} {
	return t.readyCh
}

// Run starts the tray event loop. It blocks and must be called from the
// main goroutine.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.exit)
}

// Stop ends the tray loop. A Stop before the icon exists is held until
// setup finishes, since systray drops a quit sent to a window not yet created.
func (t *Tray) Stop() {
	t.stopRequested.Store(true)
	if t.ready() {
		t.quit()
	}
}

// markReady publishes readiness and honours a Stop that arrived early.
func (t *Tray) markReady() {
	close(t.readyCh)
	if t.stopRequested.Load() {
		t.quit()
	}
}

func (t *Tray) itemLocked(id int) *MenuItem {
	if id < 0 || id >= len(t.items) {
		return nil
	}
	return t.items[id]
}

func (t *Tray) ready() bool {
	select {
	case <-t.readyCh:
		return true
	default:
		return false
	}
}

func (t *Tray) exit() {
	close(t.quitCh)
	t.mu.Lock()
	fn := t.onExit
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *Tray) setupMenu() {
	t.buildMenu()
	t.markReady()
}

func (t *Tray) buildMenu() {
	t.mu.Lock()
	defer t.mu.Unlock()

	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(getIcon())

	for _, menuItem := range t.items {
		if menuItem == nil {
			systray.AddSeparator()
			continue
		}
		menuItem.item = systray.AddMenuItem(menuItem.Title, "")
		if menuItem.Callback == nil {
			continue
		}
		go func(mi *MenuItem, clicked <-chan struct{}) {
			for {
				select {
				case <-clicked:
					mi.Callback()
				case <-t.quitCh:
					return
				}
			}
		}(menuItem, menuItem.item.ClickedCh)
	}
}

const iconSize = 16

// getIcon returns a 16x16 32-bit ICO: a keycap outline on a transparent field.
func getIcon() []byte {
	const (
		headerLen = 6 + 16
		dibLen    = 40
		pixelLen  = iconSize * iconSize * 4
		maskLen   = iconSize * 4 // 1bpp rows padded to 32 bits
		imageLen  = dibLen + pixelLen + maskLen
	)
	icon := make([]byte, headerLen+imageLen)
	le := binary.LittleEndian

	// ICONDIR
	le.PutUint16(icon[2:], 1) // type: icon
	le.PutUint16(icon[4:], 1) // count

	// ICONDIRENTRY
	icon[6] = iconSize
	icon[7] = iconSize
	le.PutUint16(icon[10:], 1)  // planes
	le.PutUint16(icon[12:], 32) // bpp
	le.PutUint32(icon[14:], imageLen)
	le.PutUint32(icon[18:], headerLen)

	// BITMAPINFOHEADER; height is doubled for the AND mask
	dib := icon[headerLen:]
	le.PutUint32(dib[0:], dibLen)
	le.PutUint32(dib[4:], iconSize)
	le.PutUint32(dib[8:], iconSize*2)
	le.PutUint16(dib[12:], 1)
	le.PutUint16(dib[14:], 32)
	le.PutUint32(dib[20:], pixelLen)

	// BGRA pixels, bottom-up
	pixels := dib[dibLen : dibLen+pixelLen]
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			edge := x == 2 || x == iconSize-3 || y == 2 || y == iconSize-3
			inside := x >= 2 && x <= iconSize-3 && y >= 2 && y <= iconSize-3
			if !edge || !inside {
				continue
			}
			p := pixels[(y*iconSize+x)*4:]
			p[0], p[1], p[2], p[3] = 0xE0, 0xE0, 0xE0, 0xFF
		}
	}
	return icon
}
