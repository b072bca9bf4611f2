package circuit

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pkg/errors"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/gate"
)

func bell() Circuit {
	c := New(2, 3)
	if err := c.Place(0, 0, gate.H); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	if err := c.PlaceControlled(0, 1, 1, gate.CX, 0); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return c
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		c     func() Circuit
		field string
	}{
		{name: "no qubits", c: func() Circuit { return New(0, 1) }, field: "numQubits"},
		{name: "missing row", c: func() Circuit {
			c := New(2, 1)
			c.Cells = c.Cells[:1]
			return c
		}, field: "rows"},
		{name: "ragged", c: func() Circuit {
			c := New(2, 2)
			c.Cells[1] = c.Cells[1][:1]
			return c
		}, field: "rows"},
		{name: "short initial", c: func() Circuit {
			c := New(2, 1)
			c.Initial = "0"
			return c
		}, field: "initialStates"},
		{name: "bad initial", c: func() Circuit {
			c := New(2, 1)
			c.Initial = "02"
			return c
		}, field: "initialStates"},
		{name: "lone control", c: func() Circuit {
			c := New(2, 1)
			c.Cells[0][0] = Cell{Gate: gate.CX, Role: Control}
			return c
		}, field: "gates"},
		{name: "lone target", c: func() Circuit {
			c := New(2, 1)
			c.Cells[1][0] = Cell{Gate: gate.CZ, Role: Target}
			return c
		}, field: "gates"},
		{name: "controlled without role", c: func() Circuit {
			c := New(2, 1)
			c.Cells[1][0] = Cell{Gate: gate.Swap}
			return c
		}, field: "gates"},
		{name: "mismatched partner", c: func() Circuit {
			c := New(3, 1)
			c.Cells[0][0] = Cell{Gate: gate.CX, Role: Control, Partner: 1}
			c.Cells[2][0] = Cell{Gate: gate.CX, Role: Target, Partner: 0}
			return c
		}, field: "gates"},
		{name: "single with role", c: func() Circuit {
			c := New(2, 1)
			c.Cells[0][0] = Cell{Gate: gate.H, Role: Control}
			c.Cells[1][0] = Cell{Gate: gate.H, Role: Target}
			return c
		}, field: "gates"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			err := test.c().Validate()
			var ce *qsim.ConfigurationError
			if !qsim.IsConfigurationError(err) {
				t.Fatalf("%+v, expected configuration error", err)
			}
			if !errors.As(err, &ce) || ce.Field != test.field {
				t.Fatalf("%+v, expected field %s", err, test.field)
			}
		})
	}

	if err := bell().Validate(); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestPlace(t *testing.T) {
	t.Parallel()
	c := New(3, 2)
	if err := c.Place(0, 0, gate.X); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := c.Place(0, 0, gate.H); !qsim.IsConfigurationError(err) {
		t.Fatalf("%+v, expected occupied cell error", err)
	}
	if err := c.Place(3, 0, gate.H); !qsim.IsConfigurationError(err) {
		t.Fatalf("%+v, expected qubit out of range", err)
	}
	if err := c.Place(0, 2, gate.H); !qsim.IsConfigurationError(err) {
		t.Fatalf("%+v, expected column out of range", err)
	}
	if err := c.Place(1, 0, gate.CX); !qsim.IsConfigurationError(err) {
		t.Fatalf("%+v, expected controlled gate error", err)
	}
	if err := c.PlaceControlled(1, 1, 0, gate.CX, 0); !qsim.IsConfigurationError(err) {
		t.Fatalf("%+v, expected same qubit error", err)
	}
	if err := c.PlaceControlled(1, 2, 0, gate.H, 0); !qsim.IsConfigurationError(err) {
		t.Fatalf("%+v, expected not controlled error", err)
	}
	// Unknown gates are accepted.
	if err := c.Place(2, 1, "foo"); err != nil {
		t.Fatalf("%+v", err)
	}

	if err := c.PlaceControlled(2, 1, 0, gate.CZ, 0); err != nil {
		t.Fatalf("%+v", err)
	}
	c.Remove(1, 0)
	if !c.Cells[1][0].Empty() || !c.Cells[2][0].Empty() {
		t.Fatalf("%#v, expected the pair removed", c.Cells)
	}
	if c.Cells[0][0].Gate != gate.X {
		t.Fatalf("%#v", c.Cells)
	}
}

func TestColumn(t *testing.T) {
	t.Parallel()
	c := New(4, 1)
	c.Cells[0][0] = Cell{Gate: gate.CX, Role: Target, Partner: 2}
	c.Cells[1][0] = Cell{Gate: gate.H}
	c.Cells[2][0] = Cell{Gate: gate.CX, Role: Control, Partner: 0}
	c.Cells[3][0] = Cell{Gate: "foo"}

	ps, err := c.Column(0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	expected := []string{"H(q1)", "CNOT(q2, q0)", "foo(q3)"}
	got := make([]string, 0, len(ps))
	for _, p := range ps {
		got = append(got, p.String())
	}
	if !slices.Equal(got, expected) {
		t.Fatalf("%v, expected %v", got, expected)
	}
}

func TestSameGatePairs(t *testing.T) {
	t.Parallel()
	d := Document{
		NumQubits: 4,
		Gates: []GateDoc{
			{Name: "cx", Qubits: []int{0, 3}, Position: 0},
			{Name: "cx", Qubits: []int{2, 1}, Position: 0},
		},
	}
	c, err := FromDocument(d)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	back, err := c.Document()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(back.Gates) != 2 {
		t.Fatalf("%#v", back.Gates)
	}
	for i, g := range back.Gates {
		if g.Name != "cx" || !slices.Equal(g.Qubits, d.Gates[i].Qubits) || g.Position != 0 {
			t.Fatalf("%d %#v, expected %#v", i, g, d.Gates[i])
		}
	}

	// Removing a target clears its own control only.
	c.Remove(1, 0)
	if !c.Cells[1][0].Empty() || !c.Cells[2][0].Empty() {
		t.Fatalf("%#v, expected the pair on rows 1 and 2 removed", c.Cells)
	}
	if c.Cells[0][0].Role != Control || c.Cells[3][0].Role != Target {
		t.Fatalf("%#v, expected the pair on rows 0 and 3 kept", c.Cells)
	}
	ps, err := c.Column(0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(ps) != 1 || ps[0].String() != "CNOT(q0, q3)" {
		t.Fatalf("%v", ps)
	}
}

func TestPlacements(t *testing.T) {
	t.Parallel()
	c := New(3, 4)
	for _, p := range []struct {
		qubit, col int
		id         gate.ID
	}{{2, 0, gate.H}, {0, 0, gate.X}, {1, 2, gate.Measure}} {
		if err := c.Place(p.qubit, p.col, p.id); err != nil {
			t.Fatalf("%+v", err)
		}
	}
	if err := c.PlaceControlled(2, 0, 3, gate.CP, 0.5); err != nil {
		t.Fatalf("%+v", err)
	}

	ps, err := c.Placements()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	expected := []Placement{
		{Gate: gate.X, Column: 0, Qubits: []int{0}},
		{Gate: gate.H, Column: 0, Qubits: []int{2}},
		{Gate: gate.Measure, Column: 2, Qubits: []int{1}},
		{Gate: gate.CP, Column: 3, Qubits: []int{2, 0}, Theta: 0.5},
	}
	if len(ps) != len(expected) {
		t.Fatalf("%v, expected %v", ps, expected)
	}
	for i := range ps {
		p, e := ps[i], expected[i]
		if p.Gate != e.Gate || p.Column != e.Column || !slices.Equal(p.Qubits, e.Qubits) || p.Theta != e.Theta {
			t.Fatalf("%d %#v, expected %#v", i, p, e)
		}
	}

	if c.Empty() || !New(2, 2).Empty() {
		t.Fatalf("wrong Empty")
	}
	unknown, err := c.Unknown()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(unknown) != 0 {
		t.Fatalf("%v", unknown)
	}
}

func TestClone(t *testing.T) {
	t.Parallel()
	c := bell()
	d := c.Clone()
	d.Remove(0, 0)
	if c.Cells[0][0].Gate != gate.H {
		t.Fatalf("%#v, expected the original to be unchanged", c.Cells)
	}
}

func TestDocument(t *testing.T) {
	t.Parallel()
	c := bell()
	c.Initial = "10"
	if err := c.PlaceControlled(1, 0, 2, gate.CP, 1.25); err != nil {
		t.Fatalf("%+v", err)
	}
	d, err := c.Document()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if d.NumQubits != 2 || d.Depth != 3 || !slices.Equal(d.InitialStates, []string{"1", "0"}) || len(d.Gates) != 3 {
		t.Fatalf("%#v", d)
	}
	if g := d.Gates[2]; g.Name != "cp" || !slices.Equal(g.Qubits, []int{1, 0}) || g.Position != 2 || !slices.Equal(g.Params, []float64{1.25}) {
		t.Fatalf("%#v", g)
	}

	back, err := FromDocument(d)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if back.Qubits != c.Qubits || back.Depth != c.Depth || back.Initial != c.Initial {
		t.Fatalf("%#v, expected %#v", back, c)
	}
	for i := range c.Cells {
		if !slices.Equal(back.Cells[i], c.Cells[i]) {
			t.Fatalf("%#v, expected %#v", back.Cells, c.Cells)
		}
	}
}

func TestFromDocument(t *testing.T) {
	t.Parallel()
	d := Document{
		NumQubits: 2,
		Gates: []GateDoc{
			{Name: "H", Qubits: []int{0}, Position: 4},
			{Name: "cx", Qubits: []int{0, 1}, Position: 1},
		},
	}
	c, err := FromDocument(d)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if c.Depth != 5 || c.Initial != "00" || c.Cells[0][4].Gate != gate.H {
		t.Fatalf("%#v", c)
	}

	tests := []struct {
		name string
		d    Document
	}{
		{name: "no qubits", d: Document{NumQubits: 0}},
		{name: "initial length", d: Document{NumQubits: 2, InitialStates: []string{"0"}}},
		{name: "initial entry length", d: Document{NumQubits: 2, InitialStates: []string{"10", ""}}},
		{name: "three qubits", d: Document{NumQubits: 3, Gates: []GateDoc{{Name: "ccx", Qubits: []int{0, 1, 2}}}}},
		{name: "negative position", d: Document{NumQubits: 1, Gates: []GateDoc{{Name: "h", Qubits: []int{0}, Position: -1}}}},
		{name: "overlap", d: Document{NumQubits: 1, Gates: []GateDoc{{Name: "h", Qubits: []int{0}}, {Name: "x", Qubits: []int{0}}}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if _, err := FromDocument(test.d); !qsim.IsConfigurationError(err) {
				t.Fatalf("%+v, expected configuration error", err)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		fname   string
		content string
	}{
		{
			fname: "bell.yaml",
			content: `numQubits: 2
initialStates: ["0", "0"]
gates:
  - name: h
    qubits: [0]
    position: 0
  - name: cx
    qubits: [0, 1]
    position: 1
`,
		},
		{
			fname:   "bell.json",
			content: `{"numQubits": 2, "initialStates": ["0", "0"], "gates": [{"name": "h", "qubits": [0], "position": 0}, {"name": "cx", "qubits": [0, 1], "position": 1}]}`,
		},
	}
	for _, test := range tests {
		t.Run(test.fname, func(t *testing.T) {
			t.Parallel()
			dir, err := os.MkdirTemp("", "")
			if err != nil {
				t.Fatalf("%+v", err)
			}
			defer os.RemoveAll(dir)
			fpath := filepath.Join(dir, test.fname)
			if err := os.WriteFile(fpath, []byte(test.content), 0644); err != nil {
				t.Fatalf("%+v", err)
			}

			c, err := ReadFile(fpath)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			ps, err := c.Placements()
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(ps) != 2 || ps[0].String() != "H(q0)" || ps[1].String() != "CNOT(q0, q1)" {
				t.Fatalf("%v", ps)
			}
		})
	}
}
