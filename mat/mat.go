package mat

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"
)

// Dense is a row-major complex matrix.
type Dense struct {
	rows int
	cols int
	data []complex128
}

func NewDense(rows, cols int) *Dense {
	return &Dense{rows: rows, cols: cols, data: make([]complex128, rows*cols)}
}

func M(dense [][]complex128) *Dense {
	m := NewDense(len(dense), len(dense[0]))
	for i, row := range dense {
		if len(row) != m.cols {
			panic(fmt.Sprintf("%d %d %d", i, len(row), m.cols))
		}
		copy(m.data[i*m.cols:], row)
	}
	return m
}

// M2 converts a 2x2 gate matrix.
func M2(a [2][2]complex128) *Dense {
	return M([][]complex128{a[0][:], a[1][:]})
}

func Identity(n int) *Dense {
	m := NewDense(n, n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

func (m *Dense) Rows() int { return m.rows }
func (m *Dense) Cols() int { return m.cols }

func (m *Dense) At(i, j int) complex128 {
	m.check(i, j)
	return m.data[i*m.cols+j]
}

func (m *Dense) Set(i, j int, v complex128) {
	m.check(i, j)
	m.data[i*m.cols+j] = v
}

// AddAt adds v to the element at (i, j).
func (m *Dense) AddAt(i, j int, v complex128) {
	m.check(i, j)
	m.data[i*m.cols+j] += v
}

func (m *Dense) check(i, j int) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("%d %d %d %d", i, j, m.rows, m.cols))
	}
}

func (a *Dense) Equal(b *Dense) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	return slices.Equal(a.data, b.data)
}

// EqualApprox reports whether a and b have the same shape and every element differs by at most tol.
func (a *Dense) EqualApprox(b *Dense, tol float64) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	for i, av := range a.data {
		if cmplx.Abs(av-b.data[i]) > tol {
			return false
		}
	}
	return true
}

// Kron replaces a with the Kronecker product a ⊗ b.
func (a *Dense) Kron(b *Dense) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	data := make([]complex128, rows*cols)
	for ai := 0; ai < a.rows; ai++ {
		for aj := 0; aj < a.cols; aj++ {
			av := a.data[ai*a.cols+aj]
			if av == 0 {
				continue
			}
			for bi := 0; bi < b.rows; bi++ {
				for bj := 0; bj < b.cols; bj++ {
					ky := ai*b.rows + bi
					kx := aj*b.cols + bj
					data[ky*cols+kx] = av * b.data[bi*b.cols+bj]
				}
			}
		}
	}
	a.rows, a.cols, a.data = rows, cols, data
}

// Product sets dst to the matrix product a @ b and returns dst.
// dst must not alias a or b.
func Product(dst, a, b *Dense) *Dense {
	if a.cols != b.rows {
		panic(fmt.Sprintf("%d %d", a.cols, b.rows))
	}
	dst.rows, dst.cols = a.rows, b.cols
	dst.data = slices.Grow(dst.data[:0], a.rows*b.cols)[:a.rows*b.cols]
	clear(dst.data)
	for i := 0; i < a.rows; i++ {
		for k := 0; k < a.cols; k++ {
			aik := a.data[i*a.cols+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < b.cols; j++ {
				dst.data[i*dst.cols+j] += aik * b.data[k*b.cols+j]
			}
		}
	}
	return dst
}

// H returns the conjugate transpose.
func (m *Dense) H() *Dense {
	h := NewDense(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			h.data[j*h.cols+i] = cmplx.Conj(m.data[i*m.cols+j])
		}
	}
	return h
}

func (m *Dense) Trace() complex128 {
	var t complex128
	for i := 0; i < min(m.rows, m.cols); i++ {
		t += m.data[i*m.cols+i]
	}
	return t
}

// IsHermitian reports whether m equals its conjugate transpose within tol.
func (m *Dense) IsHermitian(tol float64) bool {
	if m.rows != m.cols {
		return false
	}
	for i := 0; i < m.rows; i++ {
		for j := i; j < m.cols; j++ {
			if cmplx.Abs(m.data[i*m.cols+j]-cmplx.Conj(m.data[j*m.cols+i])) > tol {
				return false
			}
		}
	}
	return true
}

// Dense returns a copy of the entries of m, row by row.
func (m *Dense) Dense() [][]complex128 {
	dense := make([][]complex128, m.rows)
	for i := range dense {
		dense[i] = slices.Clone(m.data[i*m.cols : (i+1)*m.cols])
	}
	return dense
}

// EigvalsHermitian returns the eigenvalues of a Hermitian matrix in ascending order.
//
// A Hermitian H = A + iB is embedded in the real symmetric matrix [[A, -B], [B, A]],
// whose spectrum is that of H with every eigenvalue repeated twice.
func (m *Dense) EigvalsHermitian() ([]float64, error) {
	if !m.IsHermitian(1e-9) {
		return nil, errors.Errorf("not hermitian %dx%d", m.rows, m.cols)
	}
	n := m.rows
	sym := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := m.data[i*n+j]
			sym.SetSym(i, j, real(v))
			sym.SetSym(n+i, n+j, real(v))
			sym.SetSym(i, n+j, -imag(v))
			sym.SetSym(j, n+i, imag(v))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return nil, errors.Errorf("eig.Factorize failed")
	}
	doubled := eig.Values(nil)
	slices.Sort(doubled)

	vals := make([]float64, 0, n)
	for i := 0; i < len(doubled); i += 2 {
		vals = append(vals, (doubled[i]+doubled[i+1])/2)
	}
	return vals, nil
}

func (m *Dense) String() string {
	lines := []string{}
	for i := 0; i < m.rows; i++ {
		cs := []string{}
		for j := 0; j < m.cols; j++ {
			v := m.data[i*m.cols+j]
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		l := strings.Join(cs, "\t")
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

// WriteCOO writes the shape and the nonzero elements of m into dir, in a format readable by numpy.
func (m *Dense) WriteCOO(dir string) error {
	shapePath := filepath.Join(dir, FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", m.rows, m.cols)), 0644); err != nil {
		return errors.Wrap(err, "")
	}

	cooPath := filepath.Join(dir, FnameCOO)
	cooF, err := os.Create(cooPath)
	if err != nil {
		return errors.Wrap(err, "")
	}

	w := csv.NewWriter(cooF)
	for _, v := range m.nonZero() {
		if err1 := w.Write([]string{FormatNumpy(v.v), strconv.Itoa(v.row), strconv.Itoa(v.col)}); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}

	if err1 := cooF.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

// ReadCOO reads a matrix written by WriteCOO.
func ReadCOO(dir string) (*Dense, error) {
	rows, cols, err := readShape(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m := NewDense(rows, cols)

	f, err := os.Open(filepath.Join(dir, FnameCOO))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer f.Close()
	r := csv.NewReader(f)
	for i := 0; ; i++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		if len(record) != 3 {
			return nil, errors.Errorf("%d %#v", i, record)
		}

		v, err := ParseNumpy(record[0])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d %#v", i, record))
		}
		row, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d %#v", i, record))
		}
		col, err := strconv.Atoi(record[2])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d %#v", i, record))
		}
		if row < 0 || row >= rows || col < 0 || col >= cols {
			return nil, errors.Errorf("%d %#v out of shape %d,%d", i, record, rows, cols)
		}
		m.Set(row, col, v)
	}
	return m, nil
}

func readShape(dir string) (int, int, error) {
	f, err := os.Open(filepath.Join(dir, FnameShape))
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	if len(records) == 0 {
		return -1, -1, errors.Errorf("empty")
	}
	row := records[0]

	if len(row) != 2 {
		return -1, -1, errors.Errorf("%#v", row)
	}
	i, err := strconv.Atoi(row[0])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}
	j, err := strconv.Atoi(row[1])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}

	return i, j, nil
}

type vRowCol struct {
	v   complex128
	row int
	col int
}

func (m *Dense) nonZero() []vRowCol {
	vrcs := make([]vRowCol, 0)
	for k, v := range m.data {
		if v == 0 {
			continue
		}
		vrcs = append(vrcs, vRowCol{v: v, row: k / m.cols, col: k % m.cols})
	}
	slices.SortFunc(vrcs, rowMajor)
	return vrcs
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float64) string {
	// If v is 0 or -0, return "0" immediately to avoid returning "-0".
	if v == 0 {
		return " 0"
	}

	s := strconv.FormatFloat(v, 'g', 6, 64)

	// Add a space before non-negative numbers to align with other negative numbers in the same column.
	if v >= 0 {
		s = " " + s
	}

	return s
}

func FormatNumpy(v complex128) string {
	switch {
	case imag(v) == 0:
		return strconv.FormatFloat(real(v), 'g', -1, 64)
	default:
		s := strconv.FormatComplex(v, 'g', -1, 128)
		s = strings.ReplaceAll(s, "i", "j")
		return s
	}
}

func ParseNumpy(s string) (complex128, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "j", "i")
	v, err := strconv.ParseComplex(s, 128)
	if err != nil {
		return complex(math.NaN(), 0), errors.Wrap(err, "")
	}
	return v, nil
}
