package tray

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/clearmic/clearmic/internal/audio"
	"github.com/clearmic/clearmic/internal/config"
	"github.com/clearmic/clearmic/internal/engine"
	"github.com/clearmic/clearmic/internal/logging"
)

type UI struct {
	engine  *engine.Engine
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mStart   *systray.MenuItem
	mStop    *systray.MenuItem
	mInputs  *systray.MenuItem
	mOutputs *systray.MenuItem
	mDenoise *systray.MenuItem

	mu      sync.Mutex
	selIn   audio.Device
	selOut  audio.Device
	haveIn  bool
	haveOut bool
}

func New(eng *engine.Engine, cfg *config.Config, version, commit string) *UI {
	log := logging.New()
	return &UI{
		engine:  eng,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
	}
}

// SetEngine sets the engine reference (for circular dependency resolution)
func (u *UI) SetEngine(eng *engine.Engine) {
	u.engine = eng
}

func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

// Status update methods for the engine to call

func (u *UI) SetIdle() {
	u.updateStatus(engine.StateIdle, "Ready")
	u.setStartStop(u.selectionValid(), false)
}

func (u *UI) SetStarting() {
	u.updateStatus(engine.StateStarting, "Starting noise cancelling...")
	u.setStartStop(false, false)
}

func (u *UI) SetRunning() {
	u.updateStatus(engine.StateRunning, "Noise cancelling active")
	u.setStartStop(false, true)
}

func (u *UI) SetStopping() {
	u.updateStatus(engine.StateStopping, "Stopping...")
	u.setStartStop(false, false)
}

func (u *UI) SetFailed(reason string) {
	u.updateStatus(engine.StateFailed, fmt.Sprintf("Error: %s", reason))
	u.setStartStop(u.selectionValid(), false)
}

func (u *UI) onReady() {
	u.updateStatus(engine.StateIdle, "Ready")
	systray.SetTooltip("Live microphone noise cancelling")

	u.mStart = systray.AddMenuItem("Start Noise Cancelling", "Route the cleaned mic to the output device")
	u.mStop = systray.AddMenuItem("Stop", "Stop the stream")
	u.mStop.Disable()
	systray.AddSeparator()

	u.mInputs = systray.AddMenuItem("Microphone", "Select input device")
	u.mOutputs = systray.AddMenuItem("Output (Virtual Mic)", "Select output device")
	u.buildDeviceMenus()

	systray.AddSeparator()
	u.mDenoise = systray.AddMenuItemCheckbox("Noise Reduction", "Toggle the denoise step", u.cfg.Denoise.Enabled)

	systray.AddSeparator()
	mDiag := systray.AddMenuItem("Copy Diagnostics", "Copy device and session info to the clipboard")
	mAbout := systray.AddMenuItem("About", "About clearmic")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.setStartStop(u.selectionValid(), false)

	// Event loop
	go u.handleEvents(mDiag, mAbout, mQuit)
}

func (u *UI) handleEvents(mDiag, mAbout, mQuit *systray.MenuItem) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-u.mStart.ClickedCh:
			u.startSession()
		case <-u.mStop.ClickedCh:
			u.engine.Stop()
		case <-u.mDenoise.ClickedCh:
			u.toggleDenoise()
		case <-mDiag.ClickedCh:
			u.copyDiagnostics()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-ticker.C:
			if u.engine.State() == engine.StateRunning {
				systray.SetTooltip(fmt.Sprintf("Noise cancelling active — %d blocks dropped",
					u.engine.DroppedFrames()))
			}
		case <-mQuit.ClickedCh:
			u.log.Info().Msg("Quit requested")
			u.engine.Stop()
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenus() {
	inputs, outputs, err := u.engine.Devices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
	}
	if len(inputs) == 0 {
		u.mInputs.AddSubMenuItem("No input devices found", "").Disable()
	}
	if len(outputs) == 0 {
		u.mOutputs.AddSubMenuItem("No output devices found", "").Disable()
	}

	defIn, defOut, defErr := u.engine.DefaultDevices()

	u.mu.Lock()
	for _, dev := range inputs {
		if dev.Name == u.cfg.Audio.InputDevice {
			u.selIn, u.haveIn = dev, true
		}
	}
	for _, dev := range outputs {
		if dev.Name == u.cfg.Audio.OutputDevice {
			u.selOut, u.haveOut = dev, true
		}
	}
	if !u.haveIn && defErr == nil {
		u.selIn, u.haveIn = defIn, true
	}
	if !u.haveOut && defErr == nil {
		u.selOut, u.haveOut = defOut, true
	}
	selIn, selOut := u.selIn, u.selOut
	haveIn, haveOut := u.haveIn, u.haveOut
	u.mu.Unlock()

	inputItems := make(map[int]*systray.MenuItem)
	for _, dev := range inputs {
		item := u.mInputs.AddSubMenuItem(dev.Name, "")
		if haveIn && dev.ID == selIn.ID {
			item.Check()
		}
		inputItems[dev.ID] = item

		go func(device audio.Device, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				for id, itm := range inputItems {
					if id != device.ID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.selectInput(device)
			}
		}(dev, item)
	}

	outputItems := make(map[int]*systray.MenuItem)
	for _, dev := range outputs {
		item := u.mOutputs.AddSubMenuItem(dev.Name, "")
		if haveOut && dev.ID == selOut.ID {
			item.Check()
		}
		outputItems[dev.ID] = item

		go func(device audio.Device, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				for id, itm := range outputItems {
					if id != device.ID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.selectOutput(device)
			}
		}(dev, item)
	}
}

func (u *UI) selectInput(device audio.Device) {
	u.mu.Lock()
	u.selIn, u.haveIn = device, true
	u.mu.Unlock()

	u.cfg.Audio.InputDevice = device.Name
	u.cfg.Save()
	u.log.Info().Str("device", device.Name).Msg("Changed input device")

	if u.engine.State() == engine.StateRunning {
		u.log.Info().Msg("New input takes effect on the next start")
	} else {
		u.setStartStop(u.selectionValid(), false)
	}
}

func (u *UI) selectOutput(device audio.Device) {
	u.mu.Lock()
	u.selOut, u.haveOut = device, true
	u.mu.Unlock()

	u.cfg.Audio.OutputDevice = device.Name
	u.cfg.Save()
	u.log.Info().Str("device", device.Name).Msg("Changed output device")

	if u.engine.State() == engine.StateRunning {
		u.log.Info().Msg("New output takes effect on the next start")
	} else {
		u.setStartStop(u.selectionValid(), false)
	}
}

func (u *UI) startSession() {
	u.mu.Lock()
	in, out := u.selIn, u.selOut
	ok := u.haveIn && u.haveOut
	u.mu.Unlock()

	if !ok {
		systray.SetTooltip("Select an input and an output device first")
		return
	}
	if err := u.engine.Start(in, out); err != nil {
		u.log.Error().Err(err).Msg("Failed to start noise cancelling")
		systray.SetTooltip(fmt.Sprintf("Cannot start: %s", err))
	}
}

func (u *UI) toggleDenoise() {
	enabled := !u.engine.DenoiseEnabled()
	u.engine.SetDenoiseEnabled(enabled)
	if enabled {
		u.mDenoise.Check()
	} else {
		u.mDenoise.Uncheck()
	}
	u.cfg.Denoise.Enabled = enabled
	u.cfg.Save()
}

func (u *UI) copyDiagnostics() {
	inputs, outputs, err := u.engine.Devices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list devices for diagnostics")
	}
	text := diagnosticsText(u.version, u.commit, u.engine.State(),
		u.engine.DroppedFrames(), u.engine.SkippedBlocks(), u.engine.LastError(),
		inputs, outputs)
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy diagnostics")
		return
	}
	u.log.Info().Msg("Diagnostics copied to clipboard")
}

func (u *UI) showAbout() {
	fmt.Printf("clearmic %s (%s)\nLive microphone noise cancelling\n", u.version, u.commit)
}

func (u *UI) onExit() {
	// Cleanup
}

func (u *UI) selectionValid() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.haveIn || !u.haveOut {
		return false
	}
	return audio.Validate(u.selIn, u.selOut) == nil
}

// setStartStop flips the Start/Stop items; safe before onReady built them.
func (u *UI) setStartStop(startEnabled, stopEnabled bool) {
	if u.mStart == nil || u.mStop == nil {
		return
	}
	if startEnabled {
		u.mStart.Enable()
	} else {
		u.mStart.Disable()
	}
	if stopEnabled {
		u.mStop.Enable()
	} else {
		u.mStop.Disable()
	}
}

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(st engine.State, tooltip string) {
	systray.SetTitle(fmt.Sprintf("🎤 %s", emojiForState(st)))
	if tooltip != "" {
		systray.SetTooltip(tooltip)
	}
}

// emojiForState returns the appropriate status emoji
func emojiForState(st engine.State) string {
	switch st {
	case engine.StateRunning:
		return "🔵" // Blue - stream active
	case engine.StateStarting, engine.StateStopping:
		return "🟡" // Yellow - in transition
	case engine.StateFailed:
		return "⚪️" // White - error
	case engine.StateIdle:
		return "🟢" // Green - ready
	default:
		return "🟢"
	}
}

// diagnosticsText renders the support snapshot placed on the clipboard.
func diagnosticsText(version, commit string, st engine.State, dropped, skipped uint64,
	lastErr error, inputs, outputs []audio.Device) string {

	var b strings.Builder
	fmt.Fprintf(&b, "clearmic %s (%s)\n", version, commit)
	fmt.Fprintf(&b, "state: %s\n", st)
	fmt.Fprintf(&b, "dropped blocks: %d\n", dropped)
	fmt.Fprintf(&b, "skipped blocks: %d\n", skipped)
	if lastErr != nil {
		fmt.Fprintf(&b, "last error: %s\n", lastErr)
	}
	b.WriteString("input devices:\n")
	for _, d := range inputs {
		fmt.Fprintf(&b, "  [%d] %s (%d ch, %.0f Hz)\n", d.ID, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	b.WriteString("output devices:\n")
	for _, d := range outputs {
		fmt.Fprintf(&b, "  [%d] %s (%d ch, %.0f Hz)\n", d.ID, d.Name, d.MaxOutputChannels, d.DefaultSampleRate)
	}
	return b.String()
}
