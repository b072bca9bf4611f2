package circuit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/gate"
)

// Document is the exchange form of a circuit, shared by circuit files and the remote service.
type Document struct {
	NumQubits     int       `json:"numQubits" yaml:"numQubits"`
	Depth         int       `json:"depth,omitempty" yaml:"depth,omitempty"`
	InitialStates []string  `json:"initialStates" yaml:"initialStates"`
	Gates         []GateDoc `json:"gates" yaml:"gates"`
}

// GateDoc is one placement of a Document.
type GateDoc struct {
	Name     string    `json:"name" yaml:"name"`
	Qubits   []int     `json:"qubits" yaml:"qubits"`
	Position int       `json:"position" yaml:"position"`
	Params   []float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// Document converts c, listing gates in column then row order with the control qubit first.
func (c Circuit) Document() (Document, error) {
	if err := c.Validate(); err != nil {
		return Document{}, err
	}
	ps, err := c.Placements()
	if err != nil {
		return Document{}, err
	}

	d := Document{NumQubits: c.Qubits, Depth: c.Depth}
	for _, b := range []byte(c.Initial) {
		d.InitialStates = append(d.InitialStates, string(b))
	}
	d.Gates = make([]GateDoc, 0, len(ps))
	for _, p := range ps {
		g := GateDoc{Name: string(p.Gate), Qubits: p.Qubits, Position: p.Column}
		if s, err := gate.Lookup(p.Gate); err == nil && s.Parametric() {
			g.Params = []float64{p.Theta}
		}
		d.Gates = append(d.Gates, g)
	}
	return d, nil
}

// FromDocument rebuilds the grid of a Document.
// The depth is the larger of the declared depth and the last gate position plus one.
func FromDocument(d Document) (Circuit, error) {
	depth := d.Depth
	for _, g := range d.Gates {
		if g.Position < 0 {
			return Circuit{}, qsim.ConfigErrorf("gates", "%s has position %d", g.Name, g.Position)
		}
		depth = max(depth, g.Position+1)
	}
	if d.NumQubits < 1 {
		return Circuit{}, qsim.ConfigErrorf("numQubits", "%d, expected at least 1", d.NumQubits)
	}

	c := New(d.NumQubits, depth)
	if d.InitialStates != nil {
		if len(d.InitialStates) != d.NumQubits {
			return Circuit{}, qsim.ConfigErrorf("initialStates", "%d entries, expected %d", len(d.InitialStates), d.NumQubits)
		}
		for i, st := range d.InitialStates {
			if len(st) != 1 {
				return Circuit{}, qsim.ConfigErrorf("initialStates", "entry %d is %q, expected one character", i, st)
			}
		}
		c.Initial = qsim.InitialState(strings.Join(d.InitialStates, ""))
	}

	for i, g := range d.Gates {
		id := gate.ID(strings.ToLower(g.Name))
		var err error
		switch len(g.Qubits) {
		case 1:
			err = c.Place(g.Qubits[0], g.Position, id)
		case 2:
			var theta float64
			if len(g.Params) > 0 {
				theta = g.Params[0]
			}
			err = c.PlaceControlled(g.Qubits[0], g.Qubits[1], g.Position, id, theta)
		default:
			err = qsim.ConfigErrorf("gates", "%s has %d qubits", g.Name, len(g.Qubits))
		}
		if err != nil {
			return Circuit{}, errors.Wrap(err, fmt.Sprintf("gate %d", i))
		}
	}

	if err := c.Validate(); err != nil {
		return Circuit{}, err
	}
	return c, nil
}

// ReadFile reads a circuit Document stored as YAML (.yaml, .yml) or JSON.
func ReadFile(fpath string) (Circuit, error) {
	b, err := os.ReadFile(fpath)
	if err != nil {
		return Circuit{}, errors.Wrap(err, "")
	}

	var d Document
	switch strings.ToLower(filepath.Ext(fpath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &d); err != nil {
			return Circuit{}, errors.Wrap(err, fpath)
		}
	default:
		if err := json.Unmarshal(b, &d); err != nil {
			return Circuit{}, errors.Wrap(err, fpath)
		}
	}

	c, err := FromDocument(d)
	if err != nil {
		return Circuit{}, errors.Wrap(err, fpath)
	}
	return c, nil
}
