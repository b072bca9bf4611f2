// Package remote talks to an external circuit execution service.
//
// The service is a collaborator, not part of this module. Every failure to reach it or
// to get a successful answer is a TransportError, upon which Execute falls back to local simulation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/circuit"
)

const (
	pathRun      = "/api/qiskit"
	pathBackends = "/api/qiskit/backends"
	pathJobs     = "/api/qiskit/jobs/"
)

// Options are the execution options sent along a circuit.
type Options struct {
	Backend           string `json:"backend"`
	Shots             int    `json:"shots"`
	OptimizationLevel int    `json:"optimization_level"`
}

// NewOptions returns the service defaults.
func NewOptions() Options {
	return Options{Backend: "simulator", Shots: 1024, OptimizationLevel: 1}
}

// Request is the body of a run request.
type Request struct {
	Circuit circuit.Document `json:"circuit"`
	Options Options          `json:"options"`
}

// CircuitInfo echoes the size of the executed circuit.
type CircuitInfo struct {
	NumQubits int `json:"numQubits"`
	Depth     int `json:"depth"`
}

// Response is the result of a run, or the handle of a queued hardware job.
type Response struct {
	Circuit                *CircuitInfo         `json:"circuit,omitempty"`
	Statevector            []qsim.Amplitude     `json:"statevector,omitempty"`
	Counts                 map[string]int       `json:"counts,omitempty"`
	DensityMatrix          [][]qsim.Amplitude   `json:"density_matrix,omitempty"`
	ReducedDensityMatrices [][][]qsim.Amplitude `json:"reduced_density_matrices,omitempty"`
	EntanglementEntropies  []float64            `json:"entanglement_entropies,omitempty"`

	JobID   string `json:"job_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Backend string `json:"backend,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	// Approximate is set by local simulation when some gates were not simulated.
	Approximate bool `json:"approximate,omitempty"`
}

// State returns the statevector of r.
func (r *Response) State() qsim.Vector {
	return qsim.FromAmplitudes(r.Statevector)
}

// check verifies the sizes of a simulation result of n qubits.
// A queued job carries no result yet.
func (r *Response) check(n int) error {
	if r.JobID != "" {
		return nil
	}
	if len(r.Statevector) != 1<<n {
		return errors.Errorf("statevector has %d amplitudes, expected %d", len(r.Statevector), 1<<n)
	}
	if len(r.EntanglementEntropies) != 0 && len(r.EntanglementEntropies) != n {
		return errors.Errorf("%d entanglement entropies, expected %d", len(r.EntanglementEntropies), n)
	}
	if len(r.ReducedDensityMatrices) != 0 && len(r.ReducedDensityMatrices) != n {
		return errors.Errorf("%d reduced density matrices, expected %d", len(r.ReducedDensityMatrices), n)
	}
	return nil
}

// Backend describes an execution target offered by the service.
type Backend struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	NumQubits   int    `json:"num_qubits"`
	Status      string `json:"status,omitempty"`
}

// TransportError is a failure to obtain a successful response from the service.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Client is a client of the execution service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: &http.Client{Timeout: timeout}}
}

// Run executes a circuit remotely.
// A result that does not match the size of d is a TransportError.
func (c *Client) Run(ctx context.Context, d circuit.Document, opt Options) (*Response, error) {
	var resp Response
	if err := c.do(ctx, http.MethodPost, pathRun, Request{Circuit: d, Options: opt}, &resp); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := resp.check(d.NumQubits); err != nil {
		return nil, errors.WithStack(&TransportError{Op: http.MethodPost + " " + pathRun, URL: c.BaseURL + pathRun, Err: err})
	}
	return &resp, nil
}

// Backends lists the execution targets of the service.
func (c *Client) Backends(ctx context.Context) ([]Backend, error) {
	bs := make([]Backend, 0)
	if err := c.do(ctx, http.MethodGet, pathBackends, nil, &bs); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return bs, nil
}

// Job returns the status, and once done the counts, of a queued job.
func (c *Client) Job(ctx context.Context, id string) (*Response, error) {
	var resp Response
	if err := c.do(ctx, http.MethodGet, pathJobs+url.PathEscape(id), nil, &resp); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	u := c.BaseURL + path
	op := method + " " + path
	transportErr := func(status int, err error) error {
		return errors.WithStack(&TransportError{Op: op, URL: u, StatusCode: status, Err: err})
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return transportErr(0, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return transportErr(0, err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return transportErr(res.StatusCode, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return transportErr(res.StatusCode, errors.New(msg))
	}
	if err := json.Unmarshal(b, out); err != nil {
		return transportErr(res.StatusCode, err)
	}
	return nil
}
