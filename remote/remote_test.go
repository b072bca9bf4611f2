package remote

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/circuit"
	"github.com/fumin/qsim/gate"
	"github.com/fumin/qsim/sim"
)

func newServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/qiskit", func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if req.Options.Backend == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "backend broken"})
			return
		}
		n := req.Circuit.NumQubits
		sv := make([]qsim.Amplitude, 1<<n)
		sv[0] = qsim.Amplitude{Re: 1}
		json.NewEncoder(w).Encode(Response{
			Circuit:               &CircuitInfo{NumQubits: n, Depth: len(req.Circuit.Gates)},
			Statevector:           sv,
			Counts:                map[string]int{qsim.Basis(0, n): req.Options.Shots},
			EntanglementEntropies: make([]float64, n),
			Backend:               req.Options.Backend,
		})
	})
	mux.HandleFunc("GET /api/qiskit/backends", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Backend{
			{Name: "simulator", Type: "simulator", Description: "Qiskit Aer Simulator", NumQubits: 32},
			{Name: "ibmq_qasm_simulator", Type: "simulator", Description: "IBM Quantum QASM Simulator", NumQubits: 32, Status: "online"},
		})
	})
	mux.HandleFunc("GET /api/qiskit/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{JobID: r.PathValue("id"), Status: "QUEUED"})
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func hCircuit(t *testing.T) circuit.Circuit {
	c := circuit.New(2, 1)
	if err := c.Place(0, 0, gate.H); err != nil {
		t.Fatalf("%+v", err)
	}
	return c
}

func evaluate(t *testing.T, c circuit.Circuit) sim.History {
	h, err := sim.Evaluate(c)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return h
}

func TestRun(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	client := NewClient(s.URL+"/", time.Second)
	d, err := hCircuit(t).Document()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	resp, err := client.Run(context.Background(), d, NewOptions())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if resp.Circuit.NumQubits != 2 || resp.Circuit.Depth != 1 || resp.Counts["00"] != 1024 || resp.Backend != "simulator" {
		t.Fatalf("%#v", resp)
	}
	if st := resp.State(); len(st) != 4 || st[0] != 1 {
		t.Fatalf("%v", st)
	}
}

func TestRunError(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	client := NewClient(s.URL, time.Second)
	d, err := hCircuit(t).Document()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	opt := NewOptions()
	opt.Backend = "broken"
	_, err = client.Run(context.Background(), d, opt)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("%+v, expected transport error", err)
	}
	if te.StatusCode != http.StatusInternalServerError || te.Err.Error() != "backend broken" {
		t.Fatalf("%#v", te)
	}
}

func TestRunMalformed(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entanglement_entropies":[0,0],"counts":{"00":10}}`))
	}))
	t.Cleanup(s.Close)
	client := NewClient(s.URL, time.Second)
	c := hCircuit(t)
	d, err := c.Document()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := client.Run(context.Background(), d, NewOptions()); !IsTransportError(err) {
		t.Fatalf("%+v, expected transport error", err)
	}

	resp, source, err := Execute(context.Background(), client, c, evaluate(t, c), NewOptions(), rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if source != SourceLocal || len(resp.Statevector) != 4 {
		t.Fatalf("%s %#v", source, resp)
	}
}

func TestBackendsAndJob(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	client := NewClient(s.URL, time.Second)
	bs, err := client.Backends(context.Background())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(bs) != 2 || bs[0].Name != "simulator" || bs[1].NumQubits != 32 || bs[1].Status != "online" {
		t.Fatalf("%#v", bs)
	}

	job, err := client.Job(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if job.JobID != "job-1" || job.Status != "QUEUED" {
		t.Fatalf("%#v", job)
	}

	// Unknown paths are answered with a plain text 404.
	client.BaseURL += "/missing"
	if _, err := client.Backends(context.Background()); !IsTransportError(err) {
		t.Fatalf("%+v, expected transport error", err)
	}
}

func TestExecute(t *testing.T) {
	t.Parallel()
	s := newServer(t)
	c := hCircuit(t)
	h := evaluate(t, c)

	resp, source, err := Execute(context.Background(), NewClient(s.URL, time.Second), c, h, NewOptions(), rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if source != SourceRemote || resp.Backend != "simulator" {
		t.Fatalf("%s %#v", source, resp)
	}

	// Nothing listens on a closed server.
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	opt := NewOptions()
	opt.Shots = 500
	resp, source, err = Execute(context.Background(), NewClient(closed.URL, time.Second), c, h, opt, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if source != SourceLocal || resp.Backend != "local" {
		t.Fatalf("%s %#v", source, resp)
	}
	var total int
	for k, v := range resp.Counts {
		if k != "00" && k != "01" {
			t.Fatalf("%v", resp.Counts)
		}
		total += v
	}
	if total != opt.Shots {
		t.Fatalf("%d, expected %d", total, opt.Shots)
	}

	resp, source, err = Execute(context.Background(), nil, c, h, opt, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if source != SourceLocal {
		t.Fatalf("%s", source)
	}
}

func TestLocal(t *testing.T) {
	t.Parallel()
	c := hCircuit(t)
	if err := c.Place(1, 0, gate.X); err != nil {
		t.Fatalf("%+v", err)
	}
	resp, err := Local(c, evaluate(t, c), NewOptions(), rand.New(rand.NewPCG(2, 2)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if resp.Approximate {
		t.Fatalf("%#v, expected exact", resp)
	}
	if resp.Circuit.NumQubits != 2 || resp.Circuit.Depth != 2 {
		t.Fatalf("%#v", resp.Circuit)
	}
	if len(resp.DensityMatrix) != 4 || len(resp.ReducedDensityMatrices) != 2 || len(resp.EntanglementEntropies) != 2 {
		t.Fatalf("%#v", resp)
	}
	// Qubit 0 is |+>, qubit 1 is |1>.
	if p := resp.ReducedDensityMatrices[0][0][1]; math.Abs(p.Re-0.5) > 1e-12 {
		t.Fatalf("%#v", resp.ReducedDensityMatrices[0])
	}
	if p := resp.ReducedDensityMatrices[1][1][1]; math.Abs(p.Re-1) > 1e-12 {
		t.Fatalf("%#v", resp.ReducedDensityMatrices[1])
	}

	c = circuit.New(2, 1)
	if err := c.PlaceControlled(0, 1, 0, gate.CX, 0); err != nil {
		t.Fatalf("%+v", err)
	}
	resp, err = Local(c, evaluate(t, c), NewOptions(), rand.New(rand.NewPCG(2, 2)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !resp.Approximate {
		t.Fatalf("%#v, expected approximate", resp)
	}

	// The history of another circuit is rejected.
	if _, err := Local(circuit.New(3, 1), evaluate(t, c), NewOptions(), rand.New(rand.NewPCG(2, 2))); !qsim.IsConfigurationError(err) {
		t.Fatalf("%+v, expected configuration error", err)
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
