package tray

import (
	"encoding/binary"
	"testing"
)

func TestMenuItemIDs(t *testing.T) {
	tr := New("GKVM", "idle")
	first := tr.AddMenuItem("Suppression", nil)
	tr.AddSeparator()
	quit := tr.AddMenuItem("Quit", func() {})

	if first != 0 || quit != 2 {
		t.Errorf("Expected IDs 0 and 2, got %d and %d", first, quit)
	}
	if tr.items[1] != nil {
		t.Error("Expected separator at index 1")
	}

	// Before Run there is no native item; these must not panic.
	tr.SetItemChecked(first, true)
	tr.SetItemChecked(1, true)
	tr.SetItemChecked(42, true)
	tr.SetItemTitle(quit, "Exit")
	if tr.items[quit].Title != "Exit" {
		t.Errorf("Expected title to be updated, got %q", tr.items[quit].Title)
	}
}

func TestSetStatusBeforeReady(t *testing.T) {
	tr := New("GKVM", "starting")
	tr.SetStatus("running")
	if tr.tooltip != "running" {
		t.Errorf("Expected stored tooltip, got %q", tr.tooltip)
	}
	select {
	case <-tr.Ready():
		t.Error("tray must not report ready before Run")
	default:
	}
}

func TestStopBeforeReadyIsDeferred(t *testing.T) {
	tr := New("GKVM", "starting")
	quits := 0
	tr.quit = func() { quits++ }

	tr.Stop()
	if quits != 0 {
		t.Fatalf("Stop before setup must not reach systray, got %d quits", quits)
	}

	tr.markReady()
	if quits != 1 {
		t.Errorf("Expected the held Stop to fire once setup finished, got %d quits", quits)
	}
}

func TestStopAfterReady(t *testing.T) {
	tr := New("GKVM", "running")
	quits := 0
	tr.quit = func() { quits++ }

	tr.markReady()
	if quits != 0 {
		t.Fatalf("ready without Stop must not quit, got %d", quits)
	}
	tr.Stop()
	if quits != 1 {
		t.Errorf("Expected one quit, got %d", quits)
	}
}

func TestGetIcon(t *testing.T) {
	icon := getIcon()
	le := binary.LittleEndian

	if le.Uint16(icon[2:]) != 1 || le.Uint16(icon[4:]) != 1 {
		t.Fatal("invalid ICONDIR header")
	}
	size := le.Uint32(icon[14:])
	offset := le.Uint32(icon[18:])
	if int(offset+size) != len(icon) {
		t.Errorf("directory entry covers %d bytes, icon is %d", offset+size, len(icon))
	}
	if le.Uint32(icon[offset:]) != 40 {
		t.Error("Expected BITMAPINFOHEADER at image offset")
	}

	opaque := 0
	pixels := icon[offset+40 : offset+40+iconSize*iconSize*4]
	for i := 3; i < len(pixels); i += 4 {
		if pixels[i] == 0xFF {
			opaque++
		}
	}
	if opaque == 0 {
		t.Error("Expected a visible outline")
	}
}
