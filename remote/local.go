package remote

import (
	"context"
	"log"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/circuit"
	"github.com/fumin/qsim/density"
	"github.com/fumin/qsim/mat"
	"github.com/fumin/qsim/sim"
)

// Source tells which path produced a Response.
type Source int

const (
	SourceRemote Source = iota
	SourceLocal
)

func (s Source) String() string {
	if s == SourceLocal {
		return "local"
	}
	return "remote"
}

// Local computes a Response in process, in the shape the service returns, from h, the history of c.
// Counts are drawn from rng.
func Local(c circuit.Circuit, h sim.History, opt Options, rng *rand.Rand) (*Response, error) {
	if len(h) == 0 || len(h.Final()) != 1<<c.Qubits {
		return nil, qsim.ConfigErrorf("history", "%d steps do not belong to a circuit of %d qubits", len(h), c.Qubits)
	}
	ps, err := c.Placements()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	psi := h.Final()
	a, err := density.Analyze(psi)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	resp := &Response{
		Circuit:               &CircuitInfo{NumQubits: c.Qubits, Depth: len(ps)},
		Statevector:           psi.Amplitudes(),
		Counts:                psi.Sample(opt.Shots, rng),
		DensityMatrix:         amplitudes(a.Density),
		EntanglementEntropies: a.Entropies,
		Backend:               "local",
		Approximate:           len(h.Unapplied()) > 0,
	}
	for _, r := range a.Reduced {
		resp.ReducedDensityMatrices = append(resp.ReducedDensityMatrices, amplitudes(r))
	}
	return resp, nil
}

func amplitudes(m *mat.Dense) [][]qsim.Amplitude {
	rows := make([][]qsim.Amplitude, 0, m.Rows())
	for _, row := range m.Dense() {
		rows = append(rows, qsim.Vector(row).Amplitudes())
	}
	return rows
}

// Execute runs c on the service through client, and falls back to Local with h, the history of c,
// when the service cannot be reached or does not answer with success. A nil client means local execution.
func Execute(ctx context.Context, client *Client, c circuit.Circuit, h sim.History, opt Options, rng *rand.Rand) (*Response, Source, error) {
	if client == nil {
		resp, err := Local(c, h, opt, rng)
		return resp, SourceLocal, err
	}

	d, err := c.Document()
	if err != nil {
		return nil, SourceRemote, errors.Wrap(err, "")
	}
	resp, err := client.Run(ctx, d, opt)
	if err == nil {
		return resp, SourceRemote, nil
	}
	if !IsTransportError(err) {
		return nil, SourceRemote, err
	}

	log.Printf("falling back to local simulation: %v", err)
	resp, err = Local(c, h, opt, rng)
	return resp, SourceLocal, err
}
