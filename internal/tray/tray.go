package tray

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/voxscribe/voxscribe/internal/app"
	"github.com/voxscribe/voxscribe/internal/config"
	"github.com/voxscribe/voxscribe/internal/logging"
)

// UI is the system-tray presentation layer: record control, device
// picker, language picker and status indicator.
type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mRecord    *systray.MenuItem
	mCopy      *systray.MenuItem
	mDevices   *systray.MenuItem
	mLanguages *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
	if u.mRecord != nil {
		u.mRecord.SetTitle("Start Recording")
	}
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
	if u.mRecord != nil {
		u.mRecord.SetTitle("Stop Recording")
	}
}

func (u *UI) SetError() {
	u.updateStatus("error")
	if u.mRecord != nil {
		u.mRecord.SetTitle("Start Recording")
	}
}

func New(application *app.App, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

func (u *UI) Run() error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("Live transcription")

	u.mRecord = systray.AddMenuItem("Start Recording", "Toggle live transcription")
	u.mCopy = systray.AddMenuItem("Copy Transcript", "Copy the session transcript")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()

	u.mLanguages = systray.AddMenuItem("Language", "Select transcription language")
	u.buildLanguageMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About VoxScribe")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mRecord.ClickedCh:
			u.app.ToggleRecording()
		case <-u.mCopy.ClickedCh:
			u.copyTranscript()
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

func (u *UI) buildDeviceMenu() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.Default {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Msg("Device change rejected")
					continue
				}
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) buildLanguageMenu() {
	languages := []string{"en", "de", "fr", "es", "cs"}
	langItems := make(map[string]*systray.MenuItem)

	for _, lang := range languages {
		item := u.mLanguages.AddSubMenuItem(lang, "")
		if lang == u.cfg.Scribe.LanguageCode {
			item.Check()
		}
		langItems[lang] = item

		go func(code string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetLanguage(code); err != nil {
					u.log.Warn().Err(err).Msg("Language change rejected")
					continue
				}
				for l, itm := range langItems {
					if l != code {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("language", code).Msg("Changed transcription language")
			}
		}(lang, item)
	}
}

func (u *UI) copyTranscript() {
	text := u.app.Transcript()
	if text == "" {
		u.log.Info().Msg("No transcript to copy")
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy transcript")
		return
	}
	u.log.Info().Int("chars", len(text)).Msg("Copied transcript")
}

func (u *UI) openLogs() {
	path := logging.LogPath()
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Msg("Failed to open log file")
	}
}

func (u *UI) showAbout() {
	fmt.Printf("VoxScribe %s (%s)\nLive microphone transcription\n", u.version, u.commit)
}

func (u *UI) onExit() {
	// Cleanup
}

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(status string) {
	emoji := emojiForStatus(status)
	systray.SetTitle(fmt.Sprintf("🎤 %s", emoji))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴"
	case "idle":
		return "🟢"
	case "error":
		return "⚪️"
	default:
		return "🟢"
	}
}
