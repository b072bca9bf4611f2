// Package qsim simulates a small register of qubits as a vector of 2^n complex amplitudes.
//
// Bit k of a basis index holds the value of qubit k.
package qsim

import (
	"fmt"
	"math/bits"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Conj returns the complex conjugate of a.
func Conj(a complex128) complex128 {
	return complex(real(a), -imag(a))
}

// Abs2 returns |a|^2.
func Abs2(a complex128) float64 {
	return real(a)*real(a) + imag(a)*imag(a)
}

// Amplitude is the wire form of a complex number.
type Amplitude struct {
	Re float64 `json:"re" yaml:"re"`
	Im float64 `json:"im" yaml:"im"`
}

func (a Amplitude) Complex() complex128 { return complex(a.Re, a.Im) }

func NewAmplitude(c complex128) Amplitude { return Amplitude{Re: real(c), Im: imag(c)} }

// InitialState assigns a basis value to each qubit, character i is qubit i.
type InitialState string

// ZeroState returns the all '0' initial state of n qubits.
func ZeroState(n int) InitialState {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return InitialState(b)
}

// Index returns the basis index with bit i set for every qubit i initialized to '1'.
func (s InitialState) Index() (int, error) {
	idx := 0
	for i, c := range []byte(s) {
		switch c {
		case '0':
		case '1':
			idx |= 1 << i
		default:
			return -1, ConfigErrorf("initialStates", "qubit %d has value %q, expected '0' or '1'", i, c)
		}
	}
	return idx, nil
}

// Vector is a state vector of 2^n amplitudes.
type Vector []complex128

// NewVector returns the basis state selected by initial.
func NewVector(n int, initial InitialState) (Vector, error) {
	if n < 1 {
		return nil, ConfigErrorf("numQubits", "%d, expected at least 1", n)
	}
	if len(initial) != n {
		return nil, ConfigErrorf("initialStates", "%d entries, expected %d", len(initial), n)
	}
	idx, err := initial.Index()
	if err != nil {
		return nil, err
	}

	v := make(Vector, 1<<n)
	v[idx] = 1
	return v, nil
}

// NumQubits returns n for a vector of length 2^n.
func (v Vector) NumQubits() int {
	if len(v) == 0 || len(v)&(len(v)-1) != 0 {
		panic(fmt.Sprintf("%d", len(v)))
	}
	return bits.TrailingZeros(uint(len(v)))
}

// Clone returns a snapshot that shares no memory with v.
func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

// ApplySingle applies the 2x2 unitary m to qubit in place.
// Row 0 of m produces the bit=0 amplitude and row 1 the bit=1 amplitude of each pair.
func (v Vector) ApplySingle(m [2][2]complex128, qubit int) {
	v.checkQubit(qubit)
	v.applyPairs(m, qubit, 0, len(v)/2)
}

// ApplySingleParallel is ApplySingle with the amplitude pairs split across at most workers goroutines.
func (v Vector) ApplySingleParallel(m [2][2]complex128, qubit, workers int) {
	v.checkQubit(qubit)
	pairs := len(v) / 2
	workers = max(1, min(workers, pairs))
	chunk := (pairs + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < pairs; start += chunk {
		end := min(start+chunk, pairs)
		g.Go(func() error {
			v.applyPairs(m, qubit, start, end)
			return nil
		})
	}
	g.Wait()
}

// applyPairs updates the pairs numbered [from, to).
// Pair p consists of the index obtained by inserting a 0 bit at position qubit into p, and its partner with that bit set.
func (v Vector) applyPairs(m [2][2]complex128, qubit, from, to int) {
	bit := 1 << qubit
	low := bit - 1
	for p := from; p < to; p++ {
		i := (p&^low)<<1 | p&low
		j := i | bit

		a0, a1 := v[i], v[j]
		v[i] = m[0][0]*a0 + m[0][1]*a1
		v[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

func (v Vector) checkQubit(qubit int) {
	n := v.NumQubits()
	if qubit < 0 || qubit >= n {
		panic(fmt.Sprintf("%d %d", qubit, n))
	}
}

// Probabilities returns |amplitude|^2 of every basis state.
func (v Vector) Probabilities() []float64 {
	p := make([]float64, len(v))
	for i, a := range v {
		p[i] = Abs2(a)
	}
	return p
}

// Norm returns the sum of probabilities, which is 1 for a valid state.
func (v Vector) Norm() float64 {
	return floats.Sum(v.Probabilities())
}

// Amplitudes returns the wire form of v.
func (v Vector) Amplitudes() []Amplitude {
	amps := make([]Amplitude, len(v))
	for i, a := range v {
		amps[i] = NewAmplitude(a)
	}
	return amps
}

// FromAmplitudes is the inverse of Vector.Amplitudes.
func FromAmplitudes(amps []Amplitude) Vector {
	v := make(Vector, len(amps))
	for i, a := range amps {
		v[i] = a.Complex()
	}
	return v
}

// Basis returns the n-bit binary name of basis index i, with qubit 0 as the rightmost character.
func Basis(i, n int) string {
	return fmt.Sprintf("%0*b", n, i)
}

// Bases iterates over all basis indices of n qubits together with their names.
func Bases(n int) func(yield func(int, string) bool) {
	return func(yield func(int, string) bool) {
		for i := range 1 << n {
			if !yield(i, Basis(i, n)) {
				return
			}
		}
	}
}

// Sample draws shots measurements of every qubit and returns counts keyed by basis name.
func (v Vector) Sample(shots int, rng *rand.Rand) map[string]int {
	n := v.NumQubits()
	cum := v.Probabilities()
	floats.CumSum(cum, cum)
	total := cum[len(cum)-1]

	counts := make(map[string]int)
	for range shots {
		r := rng.Float64() * total
		i := sort.Search(len(cum), func(k int) bool { return cum[k] > r })
		if i == len(cum) {
			i = len(cum) - 1
		}
		counts[Basis(i, n)]++
	}
	return counts
}
