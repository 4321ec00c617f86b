package pipeline

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/filter"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/scoring"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/tolerance"
)

// Strategy selects how the match phase partitions work.
type Strategy string

const (
	// CandidateCentric chunks candidate ids; each candidate pulls the spectra
	// within its precursor tolerance.
	CandidateCentric Strategy = "candidate"
	// SpectrumCentric chunks scans; each spectrum pulls the candidates within
	// tolerance of its precursor mass.
	SpectrumCentric Strategy = "spectrum"
)

// ParseStrategy parses "candidate" or "spectrum".
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case CandidateCentric, SpectrumCentric:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q (want %q or %q)", s, CandidateCentric, SpectrumCentric)
}

// Config holds the orchestrator settings.
type Config struct {
	Workers          int
	ChunkSize        int // Items per work unit
	CommitInterval   int // Results buffered before a batch commit
	ProgressInterval int // Results between progress log lines
	MS1Tolerance     float64
	MS2Tolerance     float64
	Strategy         Strategy
	Weights          scoring.Weights
	Filter           filter.Config
	MaxRetries       int
	RetryBackoff     time.Duration // Multiplied by the attempt number
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Workers:          runtime.NumCPU(),
		ChunkSize:        100,
		CommitInterval:   1000,
		ProgressInterval: 1000,
		MS1Tolerance:     tolerance.DefaultMS1,
		MS2Tolerance:     tolerance.DefaultMS2,
		Strategy:         CandidateCentric,
		Weights:          scoring.DefaultWeights(),
		Filter:           filter.DefaultConfig(),
		MaxRetries:       3,
		RetryBackoff:     500 * time.Millisecond,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1, got %d", c.ChunkSize)
	}
	if c.CommitInterval < 1 {
		return fmt.Errorf("commit interval must be at least 1, got %d", c.CommitInterval)
	}
	if c.ProgressInterval < 1 {
		return fmt.Errorf("progress interval must be at least 1, got %d", c.ProgressInterval)
	}
	for name, tol := range map[string]float64{"MS1": c.MS1Tolerance, "MS2": c.MS2Tolerance} {
		if !(tol > 0) || math.IsInf(tol, 0) {
			return fmt.Errorf("%s tolerance must be positive, got %v", name, tol)
		}
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.Filter.TopN < 0 {
		return fmt.Errorf("top-N must not be negative, got %d", c.Filter.TopN)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}
