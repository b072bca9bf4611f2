// Package density derives density matrices, reduced states, entropies and expectation values from a state vector.
package density

import (
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/gate"
	"github.com/fumin/qsim/mat"
)

// ErrNeedsEigen is returned by VonNeumann2 for matrices larger than 2x2.
var ErrNeedsEigen = errors.New("requires eigenvalue decomposition")

// Matrix returns the density matrix |psi><psi|.
func Matrix(psi qsim.Vector) *mat.Dense {
	rho := mat.NewDense(len(psi), len(psi))
	for i, a := range psi {
		for j, b := range psi {
			rho.Set(i, j, a*qsim.Conj(b))
		}
	}
	return rho
}

// PartialTrace traces out the qubits in traced from the density matrix rho of n qubits.
// Elements whose traced bits differ between row and column are discarded,
// and the remaining bits are packed in ascending qubit order.
func PartialTrace(rho *mat.Dense, n int, traced []int) (*mat.Dense, error) {
	if rho.Rows() != 1<<n || rho.Cols() != 1<<n {
		return nil, qsim.ConfigErrorf("densityMatrix", "%dx%d, expected %dx%d", rho.Rows(), rho.Cols(), 1<<n, 1<<n)
	}
	var tracedMask int
	for _, q := range traced {
		if q < 0 || q >= n {
			return nil, qsim.ConfigErrorf("traceOutQubits", "qubit %d out of range [0, %d)", q, n)
		}
		if tracedMask&(1<<q) != 0 {
			return nil, qsim.ConfigErrorf("traceOutQubits", "qubit %d listed twice", q)
		}
		tracedMask |= 1 << q
	}

	dim := 1 << (n - len(traced))
	reduced := mat.NewDense(dim, dim)
	for i := 0; i < rho.Rows(); i++ {
		for j := 0; j < rho.Cols(); j++ {
			if i&tracedMask != j&tracedMask {
				continue
			}
			reduced.AddAt(compress(i, n, tracedMask), compress(j, n, tracedMask), rho.At(i, j))
		}
	}
	return reduced, nil
}

// compress packs the bits of idx that are not in mask into a contiguous index.
func compress(idx, n, mask int) int {
	var r, pos int
	for q := 0; q < n; q++ {
		if mask&(1<<q) != 0 {
			continue
		}
		if idx&(1<<q) != 0 {
			r |= 1 << pos
		}
		pos++
	}
	return r
}

// Reduce returns the reduced density matrix of the qubits in keep.
func Reduce(rho *mat.Dense, n int, keep ...int) (*mat.Dense, error) {
	traced := make([]int, 0, n)
	for q := 0; q < n; q++ {
		if !slices.Contains(keep, q) {
			traced = append(traced, q)
		}
	}
	return PartialTrace(rho, n, traced)
}

// ReducedQubits returns the 2x2 reduced density matrix of every qubit.
func ReducedQubits(rho *mat.Dense, n int) ([]*mat.Dense, error) {
	rs := make([]*mat.Dense, 0, n)
	for q := 0; q < n; q++ {
		r, err := Reduce(rho, n, q)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("qubit %d", q))
		}
		rs = append(rs, r)
	}
	return rs, nil
}

// VonNeumann2 returns the entropy in bits of a 2x2 density matrix using its closed form eigenvalues.
func VonNeumann2(rho *mat.Dense) (float64, error) {
	if rho.Rows() != 2 || rho.Cols() != 2 {
		return math.NaN(), errors.Wrap(ErrNeedsEigen, fmt.Sprintf("%dx%d", rho.Rows(), rho.Cols()))
	}

	// purity is Tr(rho^2).
	r00, r11 := real(rho.At(0, 0)), real(rho.At(1, 1))
	purity := r00*r00 + r11*r11 + 2*qsim.Abs2(rho.At(0, 1))
	lambda := 0.5 * (1 + math.Sqrt(max(0, 2*purity-1)))
	if lambda <= 0 || lambda >= 1 {
		return 0, nil
	}
	return binaryEntropy(lambda), nil
}

// VonNeumann returns the entropy in bits of a density matrix of any size, by eigen decomposition.
func VonNeumann(rho *mat.Dense) (float64, error) {
	vals, err := rho.EigvalsHermitian()
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	var s float64
	for _, v := range vals {
		s += xlog2x(v)
	}
	return -s, nil
}

func binaryEntropy(p float64) float64 {
	return -xlog2x(p) - xlog2x(1-p)
}

// xlog2x returns x*log2(x), taking the limit 0 at x <= 0 where rounding produced tiny negative eigenvalues.
func xlog2x(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x * math.Log2(x)
}

// ExpectationZ returns <Z> of every qubit, which is P(bit=0) - P(bit=1).
func ExpectationZ(psi qsim.Vector, n int) []float64 {
	if len(psi) != 1<<n {
		panic(fmt.Sprintf("%d %d", len(psi), n))
	}
	ez := make([]float64, n)
	for i, a := range psi {
		p := qsim.Abs2(a)
		for q := 0; q < n; q++ {
			switch {
			case i&(1<<q) == 0:
				ez[q] += p
			default:
				ez[q] -= p
			}
		}
	}
	return ez
}

// Lift returns the operator on n qubits that applies m to qubit q and identity elsewhere.
// Qubit n-1 is the leftmost factor of the Kronecker product, matching the bit order of basis indices.
func Lift(m [2][2]complex128, q, n int) *mat.Dense {
	op := mat.Identity(1)
	for k := n - 1; k >= 0; k-- {
		switch {
		case k == q:
			op.Kron(mat.M2(m))
		default:
			op.Kron(mat.Identity(2))
		}
	}
	return op
}

// PauliZ returns the Z observable of qubit q among n qubits.
func PauliZ(q, n int) *mat.Dense {
	return Lift(gate.PauliZ, q, n)
}

// Expectation returns Re Tr(rho @ op).
func Expectation(rho, op *mat.Dense) float64 {
	p := mat.Product(mat.NewDense(0, 0), rho, op)
	return real(p.Trace())
}

// Analysis gathers the quantities derived from one state.
type Analysis struct {
	Density      *mat.Dense
	Reduced      []*mat.Dense
	Entropies    []float64
	ExpectationZ []float64
}

// Analyze computes the density matrix of psi, the reduced state of every qubit with its entanglement entropy, and <Z>.
func Analyze(psi qsim.Vector) (Analysis, error) {
	n := psi.NumQubits()
	a := Analysis{Density: Matrix(psi), ExpectationZ: ExpectationZ(psi, n)}

	var err error
	a.Reduced, err = ReducedQubits(a.Density, n)
	if err != nil {
		return Analysis{}, errors.Wrap(err, "")
	}
	for q, r := range a.Reduced {
		e, err := VonNeumann2(r)
		if err != nil {
			return Analysis{}, errors.Wrap(err, fmt.Sprintf("qubit %d", q))
		}
		a.Entropies = append(a.Entropies, e)
	}
	return a, nil
}
