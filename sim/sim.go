// Package sim evaluates a circuit column by column and records the state after every column.
package sim

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/circuit"
	"github.com/fumin/qsim/gate"
)

const (
	initialDescription = "Initial state"

	// ParallelThreshold is the qubit count from which single qubit gates are applied by multiple goroutines.
	ParallelThreshold = 14
)

// Step is the state of the register after one circuit column.
type Step struct {
	Index       int
	State       qsim.Vector
	Description string
	// Unapplied lists the placements of this step that left the amplitudes unchanged,
	// namely controlled gates and unknown gates.
	Unapplied []circuit.Placement
}

// History is the ordered record of a run, index 0 being the initial state.
type History []Step

// State returns a copy of the state at step i.
func (h History) State(i int) qsim.Vector {
	return h[i].State.Clone()
}

// Final returns a copy of the last state.
func (h History) Final() qsim.Vector {
	return h.State(len(h) - 1)
}

// Clone returns a deep copy of h.
func (h History) Clone() History {
	c := make(History, len(h))
	for i, s := range h {
		c[i] = s.clone()
	}
	return c
}

func (s Step) clone() Step {
	s.State = s.State.Clone()
	s.Unapplied = append([]circuit.Placement(nil), s.Unapplied...)
	return s
}

// Unapplied returns the placements of all steps that were not simulated.
func (h History) Unapplied() []circuit.Placement {
	ps := make([]circuit.Placement, 0)
	for _, s := range h {
		ps = append(ps, s.Unapplied...)
	}
	return ps
}

type stepJSON struct {
	Step        int              `json:"step"`
	Amplitudes  []qsim.Amplitude `json:"amplitudes"`
	Description string           `json:"description"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepJSON{Step: s.Index, Amplitudes: s.State.Amplitudes(), Description: s.Description})
}

func (s *Step) UnmarshalJSON(b []byte) error {
	var sj stepJSON
	if err := json.Unmarshal(b, &sj); err != nil {
		return errors.Wrap(err, "")
	}
	s.Index, s.State, s.Description = sj.Step, qsim.FromAmplitudes(sj.Amplitudes), sj.Description
	return nil
}

// Phase is the state of a Stepper.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Done
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "NotStarted"
	case InProgress:
		return "InProgress"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Stepper walks the columns of a circuit.
type Stepper struct {
	c       circuit.Circuit
	phase   phaseCol
	history History
	workers int
}

type phaseCol struct {
	phase Phase
	// col is the next column to evaluate.
	col int
}

// NewStepper validates c and returns a Stepper that has not produced any step yet.
// The Stepper keeps its own copy of c.
func NewStepper(c circuit.Circuit) (*Stepper, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := &Stepper{c: c.Clone(), workers: 1}
	if c.Qubits >= ParallelThreshold {
		s.workers = runtime.GOMAXPROCS(0)
	}
	return s, nil
}

// Phase returns the current phase and, while in progress, the next column to evaluate.
func (s *Stepper) Phase() (Phase, int) {
	return s.phase.phase, s.phase.col
}

// History returns a copy of the steps produced so far.
func (s *Stepper) History() History {
	return s.history.Clone()
}

// Next produces the next step.
// It returns false once the circuit is exhausted.
func (s *Stepper) Next() (Step, bool, error) {
	switch s.phase.phase {
	case NotStarted:
		state, err := qsim.NewVector(s.c.Qubits, s.c.Initial)
		if err != nil {
			return Step{}, false, err
		}
		step := Step{Index: 0, State: state, Description: initialDescription}
		s.history = append(s.history, step)

		s.phase = phaseCol{phase: InProgress}
		if s.c.Empty() {
			s.phase = phaseCol{phase: Done}
		}
		return step.clone(), true, nil
	case InProgress:
		for s.phase.col < s.c.Depth {
			col := s.phase.col
			s.phase.col++

			ps, err := s.c.Column(col)
			if err != nil {
				return Step{}, false, err
			}
			if len(ps) == 0 {
				continue
			}

			step := s.apply(ps)
			s.history = append(s.history, step)
			return step.clone(), true, nil
		}
		s.phase = phaseCol{phase: Done}
		return Step{}, false, nil
	default:
		return Step{}, false, nil
	}
}

func (s *Stepper) apply(ps []circuit.Placement) Step {
	prev := s.history[len(s.history)-1]
	step := Step{Index: len(s.history), State: prev.State.Clone()}

	descs := make([]string, 0, len(ps))
	for _, p := range ps {
		desc, applied := applyPlacement(step.State, p, s.workers)
		descs = append(descs, desc)
		if !applied {
			step.Unapplied = append(step.Unapplied, p)
		}
	}
	step.Description = strings.Join(descs, ", ")
	return step
}

// applyPlacement applies p to state and describes it.
// It reports false when p left state unchanged for a reason other than being a measurement.
func applyPlacement(state qsim.Vector, p circuit.Placement, workers int) (string, bool) {
	spec, err := gate.Lookup(p.Gate)
	if err != nil {
		return fmt.Sprintf("%s on %s (unknown gate)", p.Gate, qubitList(p.Qubits)), false
	}

	switch spec.Kind {
	case gate.Single:
		q := p.Qubits[0]
		switch {
		case workers > 1:
			state.ApplySingleParallel(spec.Matrix, q, workers)
		default:
			state.ApplySingle(spec.Matrix, q)
		}
		return fmt.Sprintf("%s on %s", spec.Label, qubitList(p.Qubits)), true
	case gate.MeasureKind:
		return fmt.Sprintf("%s %s", spec.Label, qubitList(p.Qubits)), true
	default:
		return fmt.Sprintf("%s %s (not simulated)", spec.Label, qubitList(p.Qubits)), false
	}
}

func qubitList(qs []int) string {
	ss := make([]string, len(qs))
	for i, q := range qs {
		ss[i] = fmt.Sprintf("q%d", q)
	}
	return strings.Join(ss, "→")
}

// Evaluate runs c to completion.
func Evaluate(c circuit.Circuit) (History, error) {
	s, err := NewStepper(c)
	if err != nil {
		return nil, err
	}
	for {
		_, ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return s.history, nil
}
