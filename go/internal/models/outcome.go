package models

import "time"

// Outcome is what an engine transition produces: events to fan out, in order,
// and timer directives to apply after the state change commits.
type Outcome struct {
	Events []Event
	Timers []TimerOp
}

// TimerOp arms or disarms one named timer slot of a session.
type TimerOp struct {
	Slot   string
	Cancel bool
	After  time.Duration
	Fire   Fire
}

// Fire is delivered back to the engine when an armed slot expires. Round is
// the round the timer was armed for; engines drop fires whose round has moved on.
type Fire struct {
	Slot  string
	Round int
}

func (o *Outcome) Emit(events ...Event) {
	o.Events = append(o.Events, events...)
}

func (o *Outcome) Arm(slot string, after time.Duration, round int) {
	o.Timers = append(o.Timers, TimerOp{
		Slot:  slot,
		After: after,
		Fire:  Fire{Slot: slot, Round: round},
	})
}

func (o *Outcome) Disarm(slot string) {
	o.Timers = append(o.Timers, TimerOp{Slot: slot, Cancel: true})
}

// Ops returns the event names in emission order.
func (o Outcome) Ops() []string {
	ops := make([]string, 0, len(o.Events))
	for _, e := range o.Events {
		ops = append(ops, e.Op)
	}
	return ops
}
