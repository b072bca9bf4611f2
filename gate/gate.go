// Package gate is the registry of supported gates.
//
// Every consumer (the evaluator and the text emitters) looks gates up here,
// so an id is either known everywhere or unknown everywhere.
package gate

import (
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"
)

// ID identifies a gate, e.g. "h" or "cx".
type ID string

const (
	H       ID = "h"
	X       ID = "x"
	Y       ID = "y"
	Z       ID = "z"
	S       ID = "s"
	T       ID = "t"
	CX      ID = "cx"
	CZ      ID = "cz"
	Swap    ID = "swap"
	CP      ID = "cp"
	Measure ID = "measure"
)

// Kind says how many cells a gate occupies and how it is executed.
type Kind int

const (
	// Single gates act on one qubit through a fixed 2x2 unitary.
	Single Kind = iota
	// Controlled gates occupy a control cell and a target cell in the same column.
	Controlled
	// MeasureKind gates are descriptive, they never change amplitudes.
	MeasureKind
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Controlled:
		return "controlled"
	case MeasureKind:
		return "measure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Spec describes a registered gate.
type Spec struct {
	ID   ID
	Kind Kind
	// Label is the human readable name used in step descriptions.
	Label string
	// Matrix is the unitary of Single gates.
	Matrix [2][2]complex128
	// QASM is the OpenQASM 2.0 instruction name.
	QASM string
	// Qiskit is the QuantumCircuit method name.
	Qiskit string
	// Comment annotates generated Qiskit code.
	Comment string
}

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	Hadamard = [2][2]complex128{
		{invSqrt2, invSqrt2},
		{invSqrt2, -invSqrt2},
	}
	PauliX = [2][2]complex128{
		{0, 1},
		{1, 0},
	}
	PauliY = [2][2]complex128{
		{0, -1i},
		{1i, 0},
	}
	PauliZ = [2][2]complex128{
		{1, 0},
		{0, -1},
	}
	Phase = [2][2]complex128{
		{1, 0},
		{0, 1i},
	}
	PiOver8 = [2][2]complex128{
		{1, 0},
		{0, complex(math.Cos(math.Pi/4), math.Sin(math.Pi/4))},
	}
)

var registry = map[ID]Spec{
	H:       {ID: H, Kind: Single, Label: "H", Matrix: Hadamard, QASM: "h", Qiskit: "h", Comment: "Hadamard gate"},
	X:       {ID: X, Kind: Single, Label: "X", Matrix: PauliX, QASM: "x", Qiskit: "x", Comment: "X gate"},
	Y:       {ID: Y, Kind: Single, Label: "Y", Matrix: PauliY, QASM: "y", Qiskit: "y", Comment: "Y gate"},
	Z:       {ID: Z, Kind: Single, Label: "Z", Matrix: PauliZ, QASM: "z", Qiskit: "z", Comment: "Z gate"},
	S:       {ID: S, Kind: Single, Label: "S", Matrix: Phase, QASM: "s", Qiskit: "s", Comment: "S gate"},
	T:       {ID: T, Kind: Single, Label: "T", Matrix: PiOver8, QASM: "t", Qiskit: "t", Comment: "T gate"},
	CX:      {ID: CX, Kind: Controlled, Label: "CNOT", QASM: "cx", Qiskit: "cx", Comment: "CNOT gate"},
	CZ:      {ID: CZ, Kind: Controlled, Label: "CZ", QASM: "cz", Qiskit: "cz", Comment: "CZ gate"},
	Swap:    {ID: Swap, Kind: Controlled, Label: "SWAP", QASM: "swap", Qiskit: "swap", Comment: "SWAP gate"},
	CP:      {ID: CP, Kind: Controlled, Label: "CPhase", QASM: "cu1", Qiskit: "cp", Comment: "Controlled phase gate"},
	Measure: {ID: Measure, Kind: MeasureKind, Label: "Measure", QASM: "measure", Qiskit: "measure", Comment: "Measure qubit"},
}

// Lookup returns the registered gate with id.
func Lookup(id ID) (Spec, error) {
	s, ok := registry[id]
	if !ok {
		return Spec{}, errors.WithStack(&UnknownError{ID: id})
	}
	return s, nil
}

// IDs returns all registered ids in sorted order.
func IDs() []ID {
	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Parametric reports whether the gate takes an angle.
func (s Spec) Parametric() bool {
	return s.ID == CP
}

// UnknownError reports a gate id missing from the registry.
// It is recoverable: evaluators leave the state unchanged and emitters write a comment.
type UnknownError struct {
	ID ID
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown gate %q", string(e.ID))
}

// IsUnknown reports whether err wraps an UnknownError.
func IsUnknown(err error) bool {
	var ue *UnknownError
	return errors.As(err, &ue)
}
