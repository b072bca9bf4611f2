// Package emit renders circuits as source code for other quantum toolchains.
//
// Gates missing from the registry never fail an emission, they become comment lines.
package emit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fumin/qsim/circuit"
	"github.com/fumin/qsim/gate"
)

// QASM returns the OpenQASM 2.0 program of c.
// Initial '1' qubits are prepared with x, and gates follow in column then row order.
func QASM(c circuit.Circuit) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	ps, err := c.Placements()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("OPENQASM 2.0;\n")
	b.WriteString("include \"qelib1.inc\";\n\n")
	fmt.Fprintf(&b, "qreg q[%d];\n", c.Qubits)
	fmt.Fprintf(&b, "creg c[%d];\n", c.Qubits)

	if strings.Contains(string(c.Initial), "1") {
		b.WriteString("\n// initial state\n")
		for i, v := range []byte(c.Initial) {
			if v == '1' {
				fmt.Fprintf(&b, "x q[%d];\n", i)
			}
		}
	}

	if len(ps) > 0 {
		b.WriteString("\n")
	}
	for _, p := range ps {
		b.WriteString(qasmLine(p))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func qasmLine(p circuit.Placement) string {
	s, err := gate.Lookup(p.Gate)
	if err != nil {
		return fmt.Sprintf("// unsupported gate %q on %s", string(p.Gate), qasmQubits(p.Qubits))
	}

	switch s.Kind {
	case gate.MeasureKind:
		q := p.Qubits[0]
		return fmt.Sprintf("measure q[%d] -> c[%d];", q, q)
	case gate.Controlled:
		if s.Parametric() {
			return fmt.Sprintf("%s(%s) %s;", s.QASM, formatAngle(p.Theta), qasmQubits(p.Qubits))
		}
		return fmt.Sprintf("%s %s;", s.QASM, qasmQubits(p.Qubits))
	default:
		return fmt.Sprintf("%s %s;", s.QASM, qasmQubits(p.Qubits))
	}
}

func qasmQubits(qs []int) string {
	ss := make([]string, len(qs))
	for i, q := range qs {
		ss[i] = fmt.Sprintf("q[%d]", q)
	}
	return strings.Join(ss, ",")
}

func formatAngle(theta float64) string {
	return strconv.FormatFloat(theta, 'g', -1, 64)
}
