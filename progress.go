package avrflash

import (
	"fmt"

	"github.com/allbin/avrflash/avr109"
)

// Phase is a step of a flash operation as seen by progress listeners.
type Phase int

const (
	PhaseDecoding Phase = iota
	PhaseResetting
	PhaseWaiting
	PhaseConnecting
	PhaseNegotiating
	PhaseErasing
	PhaseProgramming
	PhaseVerifying
	PhaseExiting
	PhaseDone
)

var phaseNames = [...]string{
	PhaseDecoding:    "decoding",
	PhaseResetting:   "resetting",
	PhaseWaiting:     "waiting for bootloader",
	PhaseConnecting:  "connecting",
	PhaseNegotiating: "negotiating",
	PhaseErasing:     "erasing",
	PhaseProgramming: "programming",
	PhaseVerifying:   "verifying",
	PhaseExiting:     "exiting",
	PhaseDone:        "done",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Progress is a snapshot of a running flash. Done and Total count bytes and
// are only set while programming and verifying.
type Progress struct {
	Phase Phase
	Port  string
	Done  int
	Total int
}

// Fraction returns overall completion in [0, 1], counting programming and
// verification as the two halves of the work.
func (p Progress) Fraction() float64 {
	switch {
	case p.Phase >= PhaseExiting:
		return 1
	case p.Total == 0:
		return 0
	case p.Phase == PhaseProgramming:
		return 0.5 * float64(p.Done) / float64(p.Total)
	case p.Phase == PhaseVerifying:
		return 0.5 + 0.5*float64(p.Done)/float64(p.Total)
	default:
		return 0
	}
}

// ProgressFunc receives progress updates. It is called synchronously from
// the flashing goroutine and must not block.
type ProgressFunc func(Progress)

func phaseOf(s avr109.State) Phase {
	switch s {
	case avr109.StateNegotiating:
		return PhaseNegotiating
	case avr109.StateErasing:
		return PhaseErasing
	case avr109.StateProgramming:
		return PhaseProgramming
	case avr109.StateVerifying:
		return PhaseVerifying
	case avr109.StateExiting:
		return PhaseExiting
	default:
		return PhaseDone
	}
}
