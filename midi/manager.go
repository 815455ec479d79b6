package midi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go-padloop/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// ErrPortsTimeout is returned when the MIDI backend does not answer
var ErrPortsTimeout = errors.New("timed out listing MIDI ports")

// ListPorts returns the current MIDI ports, giving up after timeout
// (CoreMIDI can hang)
func ListPorts(timeout time.Duration) ([]drivers.In, []drivers.Out, error) {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.inPorts, r.outPorts, nil
	case <-time.After(timeout):
		return nil, nil, ErrPortsTimeout
	}
}

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// DeviceManager handles hot-plug detection of MIDI controllers
type DeviceManager struct {
	controllers map[string]Controller
	keyboards   map[string]int // lowercased port name fragment -> channel
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
}

// NewDeviceManager creates a new device manager
func NewDeviceManager() *DeviceManager {
	return &DeviceManager{
		controllers: make(map[string]Controller),
		keyboards:   make(map[string]int),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
	}
}

// WatchKeyboard connects any input port whose name contains port as a
// keyboard listening on channel (0 = omni)
func (dm *DeviceManager) WatchKeyboard(port string, channel int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.keyboards[strings.ToLower(port)] = channel
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	copy := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		copy[k] = v
	}
	return copy
}

// GetLaunchpad returns the first connected Launchpad (or nil)
func (dm *DeviceManager) GetLaunchpad() Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if c.Type() == ControllerLaunchpad {
			return c
		}
	}
	return nil
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

// keyboardChannel reports whether an input port is a watched keyboard
func (dm *DeviceManager) keyboardChannel(name string) (int, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	lower := strings.ToLower(name)
	for frag, ch := range dm.keyboards {
		if frag != "" && strings.Contains(lower, frag) {
			return ch, true
		}
	}
	return 0, false
}

func (dm *DeviceManager) connected(id string) bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	_, ok := dm.controllers[id]
	return ok
}

func (dm *DeviceManager) add(c Controller) {
	dm.mu.Lock()
	dm.controllers[c.ID()] = c
	dm.mu.Unlock()
	debug.Log("devices", "connected %s (%s)", c.ID(), c.Type())
	dm.events <- DeviceEvent{Type: DeviceConnected, Controller: c, ID: c.ID()}
}

func (dm *DeviceManager) scan() {
	inPorts, outPorts, err := ListPorts(3 * time.Second)
	if err != nil {
		// User needs to run: sudo killall coreaudiod midiserver
		debug.Log("devices", "scan skipped: %v", err)
		return
	}

	// Build map of what we see now
	seenIDs := make(map[string]bool)

	for i, inPort := range inPorts {
		id := inPort.String()

		switch {
		case IsLaunchpad(id):
			seenIDs[id] = true
			if dm.connected(id) {
				continue
			}

			// Find matching output port
			var outPort drivers.Out
			for j, op := range outPorts {
				if strings.EqualFold(op.String(), id) {
					outPort = outPorts[j]
					break
				}
			}

			lp, err := NewLaunchpadController(id, inPorts[i], outPort)
			if err != nil {
				debug.Log("devices", "launchpad %s: %v", id, err)
				continue
			}
			dm.add(lp)

		default:
			ch, ok := dm.keyboardChannel(id)
			if !ok {
				continue
			}
			seenIDs[id] = true
			if dm.connected(id) {
				continue
			}
			kb, err := NewKeyboardController(id, inPorts[i], ch)
			if err != nil {
				debug.Log("devices", "keyboard %s: %v", id, err)
				continue
			}
			dm.add(kb)
		}
	}

	// Check for disconnects
	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if !seenIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		c := dm.controllers[id]
		c.Close()
		delete(dm.controllers, id)
		debug.Log("devices", "disconnected %s", id)
		dm.events <- DeviceEvent{
			Type: DeviceDisconnected,
			ID:   id,
		}
	}
	dm.mu.Unlock()
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}
