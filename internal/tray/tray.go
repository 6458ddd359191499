package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/live-classify/internal/app"
	"github.com/petems/live-classify/internal/classify"
	"github.com/petems/live-classify/internal/logging"
	"github.com/rs/zerolog"
)

type UI struct {
	app     *app.App
	version string
	commit  string
	log     zerolog.Logger

	mu    sync.Mutex
	ready bool
	last  classify.Snapshot

	// Menu items
	mCopy       *systray.MenuItem
	mConfidence *systray.MenuItem
}

var _ app.StatusUpdater = (*UI)(nil)

func New(version, commit string, log zerolog.Logger) *UI {
	return &UI{
		version: version,
		commit:  commit,
		log:     log.With().Str("component", "tray").Logger(),
		last:    classify.Snapshot{Label: classify.LabelLoading},
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

// SetStatus shows snap in the tray title. Calls before the tray is ready
// are remembered and applied once it is.
func (u *UI) SetStatus(snap classify.Snapshot) {
	u.mu.Lock()
	u.last = snap
	ready := u.ready
	u.mu.Unlock()

	if ready {
		systray.SetTitle(Title(u.mode(), snap))
	}
}

// Run blocks on the tray event loop until Quit is chosen or ctx is done.
// It MUST be called from the main goroutine.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.mu.Lock()
	u.ready = true
	snap := u.last
	u.mu.Unlock()

	systray.SetTitle(Title(u.mode(), snap))
	systray.SetTooltip(fmt.Sprintf("Live %s classification", u.mode()))

	// Build menu
	u.mCopy = systray.AddMenuItem("Copy Label", "Copy the current label to the clipboard")
	u.mConfidence = systray.AddMenuItemCheckbox("Show Confidence", "Append the confidence to the label", u.showConfidence())

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About live-classify")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mCopy.ClickedCh:
			u.copyLabel()
		case <-u.mConfidence.ClickedCh:
			u.toggleConfidence()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) copyLabel() {
	label := u.label()
	if err := clipboard.WriteAll(label); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy label")
		return
	}
	u.log.Info().Str("label", label).Msg("Copied label")
}

func (u *UI) toggleConfidence() {
	if u.app == nil {
		return
	}
	show := !u.app.ShowConfidence()
	if show {
		u.mConfidence.Check()
		u.log.Info().Msg("Enabled confidence display")
	} else {
		u.mConfidence.Uncheck()
		u.log.Info().Msg("Disabled confidence display")
	}
	if err := u.app.SetShowConfidence(show); err != nil {
		u.log.Error().Err(err).Msg("Failed to save config")
	}
}

func (u *UI) openLogs() {
	path := logging.LogPath()
	cmd := openCommand(runtime.GOOS, path)
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open logs")
		return
	}
	go cmd.Wait()
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("live-classify: live image and sound classification")
}

func (u *UI) onExit() {
	u.log.Debug().Msg("Tray closed")
}

func (u *UI) mode() app.Mode {
	if u.app == nil {
		return app.Video
	}
	return u.app.Mode()
}

func (u *UI) label() string {
	if u.app != nil {
		return u.app.Label()
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last.Label
}

func (u *UI) showConfidence() bool {
	return u.app != nil && u.app.ShowConfidence()
}

// Title is the tray title for a snapshot: the input emoji and the label.
func Title(mode app.Mode, snap classify.Snapshot) string {
	return fmt.Sprintf("%s %s", emojiForMode(mode), snap.Label)
}

// emojiForMode returns the emoji for the classified input
func emojiForMode(mode app.Mode) string {
	switch mode {
	case app.Audio:
		return "🎤"
	default:
		return "🎥"
	}
}

// openCommand returns the command that opens path with the default app
func openCommand(goos, path string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", path)
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path)
	default:
		return exec.Command("xdg-open", path)
	}
}
