// Package circuit models a circuit as a grid of qubit rows and time step columns.
package circuit

import (
	"fmt"
	"strings"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/gate"
)

// Role tags a cell of a controlled gate.
type Role int

const (
	NoRole Role = iota
	Control
	Target
)

func (r Role) String() string {
	switch r {
	case NoRole:
		return ""
	case Control:
		return "control"
	case Target:
		return "target"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Cell is one grid position. The zero Cell is empty.
type Cell struct {
	Gate gate.ID
	Role Role
	// Partner is the row of the other half of a control/target pair.
	Partner int
	// Theta is the phase of a cp gate, stored on its control cell.
	Theta float64
}

func (c Cell) Empty() bool { return c.Gate == "" }

// Circuit is a grid of Qubits rows and Depth columns.
type Circuit struct {
	Qubits  int
	Depth   int
	Initial qsim.InitialState
	Cells   [][]Cell
}

// New returns an empty circuit with every qubit initialized to '0'.
func New(qubits, depth int) Circuit {
	c := Circuit{Qubits: qubits, Depth: depth, Initial: qsim.ZeroState(qubits)}
	c.Cells = make([][]Cell, qubits)
	for i := range c.Cells {
		c.Cells[i] = make([]Cell, depth)
	}
	return c
}

// Clone returns a deep copy of c.
func (c Circuit) Clone() Circuit {
	d := c
	d.Cells = make([][]Cell, len(c.Cells))
	for i, row := range c.Cells {
		d.Cells[i] = append([]Cell(nil), row...)
	}
	return d
}

// Place puts a single qubit gate or a measurement at (qubit, col).
func (c *Circuit) Place(qubit, col int, id gate.ID) error {
	if err := c.checkFree(qubit, col); err != nil {
		return err
	}
	if s, err := gate.Lookup(id); err == nil && s.Kind == gate.Controlled {
		return qsim.ConfigErrorf("gates", "%s needs a control and a target qubit", id)
	}
	c.Cells[qubit][col] = Cell{Gate: id}
	return nil
}

// PlaceControlled puts a control/target pair into column col.
func (c *Circuit) PlaceControlled(control, target, col int, id gate.ID, theta float64) error {
	if control == target {
		return qsim.ConfigErrorf("gates", "%s control and target are both qubit %d", id, control)
	}
	if s, err := gate.Lookup(id); err == nil && s.Kind != gate.Controlled {
		return qsim.ConfigErrorf("gates", "%s is not a controlled gate", id)
	}
	if err := c.checkFree(control, col); err != nil {
		return err
	}
	if err := c.checkFree(target, col); err != nil {
		return err
	}
	c.Cells[control][col] = Cell{Gate: id, Role: Control, Partner: target, Theta: theta}
	c.Cells[target][col] = Cell{Gate: id, Role: Target, Partner: control}
	return nil
}

// Remove clears (qubit, col) together with the other half of a controlled pair.
func (c *Circuit) Remove(qubit, col int) {
	cell := c.Cells[qubit][col]
	c.Cells[qubit][col] = Cell{}
	if cell.Role == NoRole {
		return
	}
	if cell.Partner < 0 || cell.Partner >= len(c.Cells) {
		return
	}
	if other := c.Cells[cell.Partner][col]; paired(cell, other, qubit) {
		c.Cells[cell.Partner][col] = Cell{}
	}
}

// paired reports whether other, at row cell.Partner, is the other half of cell at row.
func paired(cell, other Cell, row int) bool {
	return other.Gate == cell.Gate && other.Role != NoRole && other.Role != cell.Role && other.Partner == row
}

func (c *Circuit) checkFree(qubit, col int) error {
	if qubit < 0 || qubit >= c.Qubits {
		return qsim.ConfigErrorf("gates", "qubit %d out of range [0, %d)", qubit, c.Qubits)
	}
	if col < 0 || col >= c.Depth {
		return qsim.ConfigErrorf("gates", "column %d out of range [0, %d)", col, c.Depth)
	}
	if !c.Cells[qubit][col].Empty() {
		return qsim.ConfigErrorf("gates", "cell (%d, %d) already holds %s", qubit, col, c.Cells[qubit][col].Gate)
	}
	return nil
}

// Validate checks the grid shape, the initial state, and the pairing of controlled gates.
func (c Circuit) Validate() error {
	if c.Qubits < 1 {
		return qsim.ConfigErrorf("numQubits", "%d, expected at least 1", c.Qubits)
	}
	if len(c.Cells) != c.Qubits {
		return qsim.ConfigErrorf("rows", "%d rows, expected %d qubits", len(c.Cells), c.Qubits)
	}
	for i, row := range c.Cells {
		if len(row) != c.Depth {
			return qsim.ConfigErrorf("rows", "row %d has %d columns, expected %d", i, len(row), c.Depth)
		}
	}
	if len(c.Initial) != c.Qubits {
		return qsim.ConfigErrorf("initialStates", "%d entries, expected %d", len(c.Initial), c.Qubits)
	}
	if _, err := c.Initial.Index(); err != nil {
		return err
	}
	for col := range c.Depth {
		if _, err := c.Column(col); err != nil {
			return err
		}
	}
	return nil
}

// Placement is a gate located in the circuit.
// For controlled gates Qubits is {control, target}.
type Placement struct {
	Gate   gate.ID
	Column int
	Qubits []int
	Theta  float64
}

func (p Placement) String() string {
	name := string(p.Gate)
	if s, err := gate.Lookup(p.Gate); err == nil {
		name = s.Label
	}
	qs := make([]string, len(p.Qubits))
	for i, q := range p.Qubits {
		qs[i] = fmt.Sprintf("q%d", q)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(qs, ", "))
}

// Column returns the placements of column col in ascending row order.
// The target of a controlled gate is the Partner row of its control, it does not produce a placement of its own.
func (c Circuit) Column(col int) ([]Placement, error) {
	ps := make([]Placement, 0)
	used := make(map[int]bool)
	for row := range c.Qubits {
		cell := c.Cells[row][col]
		if cell.Empty() {
			continue
		}
		if err := checkRole(cell); err != nil {
			return nil, err
		}

		switch cell.Role {
		case NoRole:
			ps = append(ps, Placement{Gate: cell.Gate, Column: col, Qubits: []int{row}})
		case Control:
			target := cell.Partner
			if target == row || target < 0 || target >= c.Qubits || !paired(cell, c.Cells[target][col], row) {
				return nil, qsim.ConfigErrorf("gates", "%s control at (%d, %d) has no target", cell.Gate, row, col)
			}
			used[target] = true
			ps = append(ps, Placement{Gate: cell.Gate, Column: col, Qubits: []int{row, target}, Theta: cell.Theta})
		}
	}

	for row := range c.Qubits {
		if cell := c.Cells[row][col]; cell.Role == Target && !used[row] {
			return nil, qsim.ConfigErrorf("gates", "%s target at (%d, %d) has no control", cell.Gate, row, col)
		}
	}
	return ps, nil
}

func checkRole(cell Cell) error {
	s, err := gate.Lookup(cell.Gate)
	if err != nil {
		// Unknown gates are placed as given and reported by their consumers.
		return nil
	}
	switch {
	case s.Kind == gate.Controlled && cell.Role == NoRole:
		return qsim.ConfigErrorf("gates", "%s needs a control and a target cell", cell.Gate)
	case s.Kind != gate.Controlled && cell.Role != NoRole:
		return qsim.ConfigErrorf("gates", "%s cannot be a %s", cell.Gate, cell.Role)
	}
	return nil
}

// Placements returns all placements in column then row order.
func (c Circuit) Placements() ([]Placement, error) {
	ps := make([]Placement, 0)
	for col := range c.Depth {
		colPs, err := c.Column(col)
		if err != nil {
			return nil, err
		}
		ps = append(ps, colPs...)
	}
	return ps, nil
}

// Empty reports whether no cell holds a gate.
func (c Circuit) Empty() bool {
	for _, row := range c.Cells {
		for _, cell := range row {
			if !cell.Empty() {
				return false
			}
		}
	}
	return true
}

// Unknown returns the placements whose gate is not registered.
func (c Circuit) Unknown() ([]Placement, error) {
	ps, err := c.Placements()
	if err != nil {
		return nil, err
	}
	unknown := make([]Placement, 0)
	for _, p := range ps {
		if _, err := gate.Lookup(p.Gate); err != nil {
			unknown = append(unknown, p)
		}
	}
	return unknown, nil
}
