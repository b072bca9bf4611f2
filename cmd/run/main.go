package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/fumin/qsim"
	"github.com/fumin/qsim/circuit"
	"github.com/fumin/qsim/density"
	"github.com/fumin/qsim/emit"
	"github.com/fumin/qsim/remote"
	"github.com/fumin/qsim/sim"
	"github.com/fumin/qsim/store"
)

const (
	fnameHistory    = "history.json"
	fnameStatistics = "statistics.json"
	fnameDone       = "done.txt"
	dirDensity      = "density"
)

var (
	runDir   = flag.String("d", filepath.Join("runs", "qsim"), "run directory")
	dbPath   = flag.String("db", "", "sqlite database to save histories into, empty to skip")
	remoteU  = flag.String("remote", "", "base URL of the execution service, empty for local simulation only")
	backend  = flag.String("backend", "simulator", "execution service backend")
	shots    = flag.Int("shots", 1024, "number of measurement samples")
	seed     = flag.Uint64("seed", 1, "random seed of local sampling")
	emitFmt  = flag.String("emit", "none", "also write source code: none, qasm or qiskit")
	timeout  = flag.Duration("timeout", 30*time.Second, "timeout of each remote request")
	force    = flag.Bool("f", false, "recompute circuits that are already done")
	printAll = flag.Bool("v", false, "print every step")
)

type Config struct {
	RunDir  string
	DBPath  string
	Remote  string
	Options remote.Options
	Seed    uint64
	Emit    string
	Timeout time.Duration
	Force   bool
}

func NewConfig() Config {
	cfg := Config{RunDir: filepath.Join("runs", "qsim"), Options: remote.NewOptions(), Seed: 1, Timeout: 30 * time.Second}
	return cfg
}

func configFromFlags() (Config, error) {
	cfg := NewConfig()
	cfg.RunDir, cfg.DBPath, cfg.Remote = *runDir, *dbPath, *remoteU
	cfg.Options.Backend, cfg.Options.Shots = *backend, *shots
	cfg.Seed, cfg.Emit, cfg.Timeout, cfg.Force = *seed, *emitFmt, *timeout, *force

	switch cfg.Emit {
	case "", "none", "qasm", "qiskit":
	default:
		return Config{}, errors.Errorf("unknown emit format %q", cfg.Emit)
	}
	if cfg.Options.Shots < 1 {
		return Config{}, errors.Errorf("shots %d", cfg.Options.Shots)
	}
	return cfg, nil
}

// Statistics are the per circuit quantities written to fnameStatistics.
type Statistics struct {
	Qubits       int
	Steps        int
	Source       string
	Approximate  bool
	Entropies    []float64
	ExpectationZ []float64
	Counts       map[string]int
}

type result struct {
	name    string
	c       circuit.Circuit
	history sim.History
	stats   Statistics
}

func solve(ctx context.Context, cfg Config, client *remote.Client, fpath string, i int) (result, error) {
	c, err := circuit.ReadFile(fpath)
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}
	r := result{name: runName(fpath), c: c}

	r.history, err = sim.Evaluate(c)
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}

	rctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
	resp, source, err := remote.Execute(rctx, client, c, r.history, cfg.Options, rng)
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}

	final := r.history.Final()
	a, err := density.Analyze(final)
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}
	r.stats = Statistics{
		Qubits:       c.Qubits,
		Steps:        len(r.history),
		Source:       source.String(),
		Approximate:  len(r.history.Unapplied()) > 0,
		Entropies:    a.Entropies,
		ExpectationZ: a.ExpectationZ,
		Counts:       resp.Counts,
	}
	if source == remote.SourceRemote && len(resp.EntanglementEntropies) == c.Qubits && len(resp.Statevector) == 1<<c.Qubits {
		r.stats.Entropies = resp.EntanglementEntropies
		r.stats.ExpectationZ = density.ExpectationZ(resp.State(), c.Qubits)
		r.stats.Approximate = false
	}
	return r, nil
}

func runName(fpath string) string {
	return strings.TrimSuffix(filepath.Base(fpath), filepath.Ext(fpath))
}

// runNames returns the run directory name of each file.
// Files sharing a name would write into the same directory.
func runNames(files []string) ([]string, error) {
	names := make([]string, len(files))
	seen := make(map[string]string)
	for i, fpath := range files {
		names[i] = runName(fpath)
		if prev, ok := seen[names[i]]; ok {
			return nil, errors.Errorf("%s and %s are both named %s", prev, fpath, names[i])
		}
		seen[names[i]] = fpath
	}
	return names, nil
}

func write(dir string, cfg Config, r result) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	hb, err := json.MarshalIndent(r.history, "", "  ")
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, fnameHistory), hb, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	sb, err := json.Marshal(r.stats)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, fnameStatistics), sb, 0644); err != nil {
		return errors.Wrap(err, "")
	}

	rhoDir := filepath.Join(dir, dirDensity)
	if err := os.MkdirAll(rhoDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := density.Matrix(r.history.Final()).WriteCOO(rhoDir); err != nil {
		return errors.Wrap(err, "")
	}

	var src string
	switch cfg.Emit {
	case "qasm":
		src, err = emit.QASM(r.c)
	case "qiskit":
		src, err = emit.Qiskit(r.c, cfg.Options.Shots)
	}
	if err != nil {
		return errors.Wrap(err, "")
	}
	if src != "" {
		ext := map[string]string{"qasm": ".qasm", "qiskit": ".py"}[cfg.Emit]
		if err := os.WriteFile(filepath.Join(dir, "circuit"+ext), []byte(src), 0644); err != nil {
			return errors.Wrap(err, "")
		}
	}

	if err := os.WriteFile(filepath.Join(dir, fnameDone), nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func printResult(r result) {
	if *printAll {
		for _, s := range r.history {
			fmt.Printf("%s step %d: %s\n", r.name, s.Index, s.Description)
			for i, a := range s.State {
				if qsim.Abs2(a) > 1e-8 {
					fmt.Printf("  |%s> %.4f%+.4fi\n", qsim.Basis(i, r.c.Qubits), real(a), imag(a))
				}
			}
		}
	}
	for q := range r.stats.Qubits {
		fmt.Printf("%s,%d,%d,%s,%t,%f,%f\n", r.name, q, r.stats.Steps, r.stats.Source, r.stats.Approximate, r.stats.Entropies[q], r.stats.ExpectationZ[q])
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	cfg, err := configFromFlags()
	if err != nil {
		return errors.Wrap(err, "")
	}
	files := flag.Args()
	if len(files) == 0 {
		return errors.Errorf("usage: run [flags] circuit.json|circuit.yaml...")
	}
	names, err := runNames(files)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.MkdirAll(cfg.RunDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	var client *remote.Client
	if cfg.Remote != "" {
		client = remote.NewClient(cfg.Remote, cfg.Timeout)
	}

	// Circuits are independent, so they are evaluated concurrently.
	ctx := context.Background()
	results := make([]result, len(files))
	skipped := make([]bool, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, fpath := range files {
		g.Go(func() error {
			if _, err := os.Stat(filepath.Join(cfg.RunDir, names[i], fnameDone)); err == nil && !cfg.Force {
				skipped[i] = true
				return nil
			}

			r, err := solve(gctx, cfg, client, fpath, i)
			if err != nil {
				return errors.Wrap(err, fpath)
			}
			if err := write(filepath.Join(cfg.RunDir, r.name), cfg, r); err != nil {
				return errors.Wrap(err, fpath)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var st *store.Store
	if cfg.DBPath != "" {
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return errors.Wrap(err, "")
		}
		defer st.Close()
	}

	fmt.Printf("circuit,qubit,steps,source,approximate,entropy,z\n")
	for i, r := range results {
		if skipped[i] {
			log.Printf("%s already done", files[i])
			continue
		}
		printResult(r)
		if st == nil {
			continue
		}
		id, err := st.Save(ctx, r.name, r.c, r.history)
		if err != nil {
			return errors.Wrap(err, files[i])
		}
		log.Printf("%s saved as run %s", files[i], id)
	}
	return nil
}
