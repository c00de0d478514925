package sfz

import "sort"

// TransformKind tags the shape of a BlockEnvelope's input-to-output
// mapping. Using a tagged variant instead of a closure avoids a heap
// allocation every time a voice starts (see the design notes on dynamic
// dispatch for controller-driven parameters).
type TransformKind int

const (
	TransformIdentity TransformKind = iota
	TransformLinear                // output = scale * input
	TransformController            // output = base * depth * (input/127) / 100
)

// Transform is a small tagged variant applied to every event value pushed
// into a BlockEnvelope before it becomes part of the ramp.
type Transform struct {
	Kind  TransformKind
	Scale float64 // TransformLinear
	Base  float64 // TransformController
	Depth float64 // TransformController
}

// Apply maps a raw event input (already float64, e.g. a controller value
// 0..127) through the transform.
func (t Transform) Apply(x float64) float64 {
	switch t.Kind {
	case TransformLinear:
		return t.Scale * x
	case TransformController:
		return t.Base * t.Depth * (x / 127) / 100
	default:
		return x
	}
}

type envEvent struct {
	timestamp int
	value     float64
}

// BlockEnvelope accumulates timestamped controller updates within one
// render block and produces a per-sample interpolated, click-free signal.
// The current output value V is carried across blocks; only the event
// queue is cleared at the end of each Fill.
type BlockEnvelope struct {
	value     float64
	transform Transform
	events    []envEvent
	capacity  int
}

// Reserve sets the bound on the number of pending events a block may
// accumulate. Events beyond capacity are silently dropped by AddEvent.
func (e *BlockEnvelope) Reserve(capacity int) {
	e.capacity = capacity
	if cap(e.events) < capacity {
		e.events = make([]envEvent, 0, capacity)
	}
}

// SetTransform installs the mapping applied to every event value.
func (e *BlockEnvelope) SetTransform(t Transform) {
	e.transform = t
}

// SetDefaultValue sets the carried output value directly, via the
// currently installed transform: V := T(x).
func (e *BlockEnvelope) SetDefaultValue(x float64) {
	e.value = e.transform.Apply(x)
}

// AddEvent records an input value x arriving at sample offset t within
// the current block. An event already queued at the same timestamp is
// overwritten; a new event beyond the reserved capacity is dropped.
func (e *BlockEnvelope) AddEvent(t int, x float64) {
	for i := range e.events {
		if e.events[i].timestamp == t {
			e.events[i].value = x
			return
		}
	}
	if e.capacity > 0 && len(e.events) >= e.capacity {
		return
	}
	e.events = append(e.events, envEvent{timestamp: t, value: x})
}

// Fill writes N interpolated samples into output, one per element. With
// no queued events the block is filled with the carried value V. With
// events, V is stepped to each event's transformed value at its
// timestamp and linearly ramped toward the next event (or held after the
// last one). Events are cleared on return; V persists into the next
// block.
func (e *BlockEnvelope) Fill(output []float64) {
	n := len(output)
	if n == 0 {
		return
	}
	if len(e.events) == 0 {
		for i := range output {
			output[i] = e.value
		}
		return
	}

	sort.Slice(e.events, func(i, j int) bool {
		return e.events[i].timestamp < e.events[j].timestamp
	})

	v := e.value
	step := 0.0
	nextIdx := 0
	nextBoundary := e.events[0].timestamp

	for i := 0; i < n; i++ {
		if nextIdx < len(e.events) && i == nextBoundary {
			target := e.transform.Apply(e.events[nextIdx].value)
			v = target
			nextIdx++
			if nextIdx < len(e.events) {
				nextBoundary = e.events[nextIdx].timestamp
				span := nextBoundary - i
				if span <= 0 {
					span = 1
				}
				nextTarget := e.transform.Apply(e.events[nextIdx].value)
				step = (nextTarget - target) / float64(span)
			} else {
				step = 0
			}
		}
		output[i] = v
		v += step
	}

	e.value = v
	e.events = e.events[:0]
}
