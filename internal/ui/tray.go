package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/enph353/labeller/internal/labels"
	"github.com/enph353/labeller/internal/workspace"
)

// Workspace is the part of the labelling workflow the tray drives.
type Workspace interface {
	ScanStatus() workspace.ScanStatus
	View() (labels.View, error)
	Advance(onScreen *labels.Value) (labels.View, error)
	Retreat(onScreen *labels.Value) (labels.View, error)
	Save(ctx context.Context, onScreen *labels.Value) error
}

type Tray struct {
	ws     Workspace
	logger *slog.Logger

	statusItem *systray.MenuItem
	frameItem  *systray.MenuItem
	prevItem   *systray.MenuItem
	nextItem   *systray.MenuItem
	saveItem   *systray.MenuItem

	mu sync.Mutex

	onChange func(labels.View)
	onQuit   func()
}

type TrayConfig struct {
	Workspace Workspace
	Logger    *slog.Logger
	// OnChange is called after the tray moved the cursor.
	OnChange func(labels.View)
	OnQuit   func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		ws:       cfg.Workspace,
		logger:   cfg.Logger,
		onChange: cfg.OnChange,
		onQuit:   cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes())
	systray.SetTitle("Labeller")
	systray.SetTooltip("Plate labeller")

	t.mu.Lock()
	t.statusItem = systray.AddMenuItem("Status: Idle", "Current scan status")
	t.statusItem.Disable()

	t.frameItem = systray.AddMenuItem("No video open", "Current keyframe")
	t.frameItem.Disable()

	systray.AddSeparator()

	t.prevItem = systray.AddMenuItem("Previous", "Go to the previous keyframe")
	t.nextItem = systray.AddMenuItem("Next", "Go to the next keyframe")
	t.saveItem = systray.AddMenuItem("Save", "Write labels to disk")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit the labeller")
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.prevItem.ClickedCh:
				t.move(t.ws.Retreat)
			case <-t.nextItem.ClickedCh:
				t.move(t.ws.Advance)
			case <-t.saveItem.ClickedCh:
				t.save()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.Refresh()
	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// move navigates without an explicit label, so the frame keeps whatever
// was recorded for it.
func (t *Tray) move(step func(*labels.Value) (labels.View, error)) {
	v, err := step(nil)
	switch {
	case errors.Is(err, labels.ErrNoSession), errors.Is(err, labels.ErrOutOfBounds):
		t.logger.Debug("tray navigation ignored", "reason", err)
	case err != nil:
		t.logger.Error("tray navigation failed", "error", err)
	default:
		if t.onChange != nil {
			t.onChange(v)
		}
	}
	t.Refresh()
}

func (t *Tray) save() {
	if err := t.ws.Save(context.Background(), nil); err != nil {
		t.logger.Error("failed to save labels", "error", err)
		t.UpdateStatus("Save failed")
		return
	}
	t.UpdateStatus("Saved")
}

// Refresh redraws the status and keyframe items from the workspace.
func (t *Tray) Refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusItem == nil {
		return
	}

	t.statusItem.SetTitle(statusTitle(t.ws.ScanStatus()))

	v, err := t.ws.View()
	if err != nil {
		t.frameItem.SetTitle("No video open")
		t.prevItem.Disable()
		t.nextItem.Disable()
		t.saveItem.Disable()
		return
	}
	t.frameItem.SetTitle(frameTitle(v))
	t.saveItem.Enable()
	setEnabled(t.prevItem, v.CanRetreat)
	setEnabled(t.nextItem, v.CanAdvance)
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusItem == nil {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) Quit() {
	systray.Quit()
}

func setEnabled(item *systray.MenuItem, enabled bool) {
	if enabled {
		item.Enable()
	} else {
		item.Disable()
	}
}

func statusTitle(st workspace.ScanStatus) string {
	switch st.State {
	case workspace.StateRunning:
		return fmt.Sprintf("Status: Scanning %d%% (%d keyframes)", st.Percent, st.Keyframes)
	case workspace.StateIdle:
		return "Status: Idle"
	}
	return fmt.Sprintf("Status: Scan %s", st.State)
}

func frameTitle(v labels.View) string {
	label := "unlabelled"
	if v.Labeled {
		label = v.Label.String()
	}
	return fmt.Sprintf("Keyframe %d/%d (frame %d): %s", v.Cursor+1, v.Total, v.Frame, label)
}
