package emit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fumin/qsim/circuit"
	"github.com/fumin/qsim/gate"
)

// Qiskit returns a Python program that builds c with Qiskit,
// prints its statevector probabilities and samples it shots times.
func Qiskit(c circuit.Circuit, shots int) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	ps, err := c.Placements()
	if err != nil {
		return "", err
	}
	n := c.Qubits

	var b strings.Builder
	b.WriteString("from qiskit import QuantumCircuit, transpile\n")
	b.WriteString("from qiskit_aer import Aer\n")
	b.WriteString("from qiskit.visualization import plot_histogram, plot_bloch_multivector\n")
	b.WriteString("import numpy as np\n\n")

	fmt.Fprintf(&b, "# Create a quantum circuit with %d qubits\n", n)
	fmt.Fprintf(&b, "qc = QuantumCircuit(%d, %d)\n\n", n, n)

	for i, v := range []byte(c.Initial) {
		if v == '1' {
			fmt.Fprintf(&b, "qc.x(%d)  # Initialize qubit %d to |1⟩\n", i, i)
		}
	}

	b.WriteString("\n# Add gates to the circuit\n")
	for _, p := range ps {
		b.WriteString(qiskitLine(p))
		b.WriteString("\n")
	}

	b.WriteString("\n# Draw the circuit\n")
	b.WriteString("print(qc.draw())\n\n")

	b.WriteString("# Simulate the circuit\n")
	b.WriteString("simulator = Aer.get_backend('statevector_simulator')\n")
	b.WriteString("job = simulator.run(transpile(qc, simulator))\n")
	b.WriteString("result = job.result()\n")
	b.WriteString("statevector = result.get_statevector()\n\n")

	b.WriteString("# Print the state vector\n")
	b.WriteString("print('\\nState vector:')\n")
	b.WriteString("print(statevector)\n\n")

	b.WriteString("# Calculate probabilities\n")
	b.WriteString("probabilities = {}\n")
	b.WriteString("for i, amplitude in enumerate(statevector):\n")
	b.WriteString("    if abs(amplitude) > 1e-6:  # Ignore very small amplitudes\n")
	fmt.Fprintf(&b, "        state = format(i, '0%db')  # Convert to binary\n", n)
	b.WriteString("        probability = abs(amplitude)**2\n")
	b.WriteString("        probabilities[state] = probability\n")
	b.WriteString("        print(f'|{state}⟩: {probability:.4f}')\n\n")

	b.WriteString("# Run on QASM simulator for measurement results\n")
	b.WriteString("qasm_simulator = Aer.get_backend('qasm_simulator')\n")
	fmt.Fprintf(&b, "job = qasm_simulator.run(transpile(qc, qasm_simulator), shots=%d)\n", shots)
	b.WriteString("result = job.result()\n")
	b.WriteString("counts = result.get_counts(qc)\n")
	b.WriteString("print('\\nCounts:', counts)\n")
	b.WriteString("plot_histogram(counts)\n")
	return b.String(), nil
}

func qiskitLine(p circuit.Placement) string {
	s, err := gate.Lookup(p.Gate)
	if err != nil {
		return fmt.Sprintf("# unsupported gate %q on qubits %s", string(p.Gate), pyInts(p.Qubits))
	}

	args := pyInts(p.Qubits)
	switch {
	case s.Kind == gate.MeasureKind:
		args = fmt.Sprintf("%d, %d", p.Qubits[0], p.Qubits[0])
	case s.Parametric():
		args = strconv.FormatFloat(p.Theta, 'g', -1, 64) + ", " + args
	}
	return fmt.Sprintf("qc.%s(%s)  # %s", s.Qiskit, args, s.Comment)
}

func pyInts(qs []int) string {
	ss := make([]string, len(qs))
	for i, q := range qs {
		ss[i] = strconv.Itoa(q)
	}
	return strings.Join(ss, ", ")
}
