// Package midi wires a real MIDI input device to a sfz.Synth using
// gitlab.com/gomidi/midi/v2 and its rtmididrv backend. Messages arrive
// on the driver's own callback goroutine and are queued; Dispatch drains
// that queue from the render thread so Synth is only ever touched from
// one goroutine, matching its concurrency model.
package midi

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/mhschmieder/sfizz-juce"
)

// Input owns one open MIDI input port and the queue of messages it has
// received but the render thread hasn't yet consumed.
type Input struct {
	driver *rtmididrv.Driver
	in     drivers.In
	events chan midi.Message
}

// Open opens the first input device whose name has namePrefix (or the
// very first device if namePrefix is empty).
func Open(namePrefix string) (*Input, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midi: open driver: %w", err)
	}
	ins, err := driver.Ins()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("midi: list inputs: %w", err)
	}

	var chosen drivers.In
	for _, in := range ins {
		if namePrefix == "" || strings.HasPrefix(in.String(), namePrefix) {
			chosen = in
			break
		}
	}
	if chosen == nil {
		driver.Close()
		return nil, fmt.Errorf("midi: no input device matching %q", namePrefix)
	}
	if err := chosen.Open(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("midi: open %s: %w", chosen, err)
	}

	input := &Input{driver: driver, in: chosen, events: make(chan midi.Message, 1024)}
	if _, err := midi.ListenTo(chosen, input.handle); err != nil {
		chosen.Close()
		driver.Close()
		return nil, fmt.Errorf("midi: listen: %w", err)
	}
	return input, nil
}

func (i *Input) handle(msg midi.Message, timestampms int32) {
	select {
	case i.events <- msg: // drop on a full queue rather than block the driver
	default:
	}
}

// Close releases the input device and its driver.
func (i *Input) Close() {
	if i.in.IsOpen() {
		i.in.Close()
	}
	i.driver.Close()
}

// Dispatch drains every message queued since the last call and forwards
// it to synth, stamping every event at the given block-local sample
// offset — a live input has no finer timing information than "arrived
// sometime before this block was rendered."
func (i *Input) Dispatch(synth *sfz.Synth, timestamp int) {
	for {
		select {
		case msg := <-i.events:
			dispatch(synth, msg, timestamp)
		default:
			return
		}
	}
}

func dispatch(synth *sfz.Synth, msg midi.Message, timestamp int) {
	var channel, key, velocity, controller, value, pressure uint8
	var relBend int16
	var absBend uint16

	// gomidi numbers channels 0..15; the engine's channel ranges are 1..16.
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		if velocity == 0 {
			synth.RegisterNoteOff(int(channel)+1, int(key), 0, timestamp)
			return
		}
		synth.RegisterNoteOn(int(channel)+1, int(key), int(velocity), timestamp)
	case msg.GetNoteOff(&channel, &key, &velocity):
		synth.RegisterNoteOff(int(channel)+1, int(key), int(velocity), timestamp)
	case msg.GetControlChange(&channel, &controller, &value):
		synth.RegisterCC(int(channel)+1, int(controller), int(value), timestamp)
	case msg.GetPitchBend(&channel, &relBend, &absBend):
		synth.RegisterPitchWheel(int(channel)+1, int(absBend)-8192, timestamp)
	case msg.GetAfterTouch(&channel, &pressure):
		synth.RegisterAftertouch(int(channel)+1, int(pressure), timestamp)
	}
}
