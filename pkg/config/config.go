// Package config loads a murmesh deployment's public parameters from a
// YAML file, the same apiVersion/kind/spec document shape and
// os.ReadFile-then-yaml.Unmarshal idiom the teacher's apply command uses
// for resource manifests.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// Resource is the generic envelope every murmesh config document is
// wrapped in, mirroring the teacher's WarrenResource shape.
type Resource struct {
	APIVersion string             `yaml:"apiVersion"`
	Kind       string             `yaml:"kind"`
	Metadata   ResourceMetadata   `yaml:"metadata"`
	Spec       PublicParameters   `yaml:"spec"`
}

// ResourceMetadata names the config document; Labels carries operator
// annotations that don't affect replica behavior.
type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// PublicParameters is every value a replica, client, or search run needs
// to agree on out of band: group membership and addressing, protocol
// timing, the crypto scheme, and the knobs the model-checking search
// engine exposes to its CLI.
type PublicParameters struct {
	NumReplica         int      `yaml:"numReplica"`
	NumFaulty          int      `yaml:"numFaulty"`
	ReplicaAddrs       []string `yaml:"replicaAddrs"`
	ResendInterval     Duration `yaml:"resendInterval"`
	ViewChangeInterval Duration `yaml:"viewChangeInterval"`
	BatchSizeOrTrigger int      `yaml:"batchSizeOrTrigger"`

	CryptoFlavor string `yaml:"cryptoFlavor"` // plain, secp256k1, schnorrkel

	DataDir    string `yaml:"dataDir"`
	MetricsAddr string `yaml:"metricsAddr"`

	Search SearchParameters `yaml:"search"`
}

// SearchParameters configures a model-checker run: how many worker
// goroutines explore concurrently and how deep a single branch may go
// before the explorer gives up on it.
type SearchParameters struct {
	MaxDepth  int `yaml:"maxDepth"`
	NumWorker int `yaml:"numWorker"`
}

// Duration wraps time.Duration so the YAML form can be a human string
// ("1s", "250ms") instead of a raw integer of nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Load reads and parses a PublicParameters document from path.
func Load(path string) (PublicParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PublicParameters{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var resource Resource
	if err := yaml.Unmarshal(data, &resource); err != nil {
		return PublicParameters{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if resource.Kind != "" && resource.Kind != "PublicParameters" {
		return PublicParameters{}, fmt.Errorf("config: %s: unsupported kind %q", path, resource.Kind)
	}

	params := resource.Spec
	if err := params.Validate(); err != nil {
		return PublicParameters{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return params, nil
}

// Validate checks the invariants a replica group must satisfy: n = 3f+1,
// one address per replica, and sane defaults for anything left at zero.
func (p *PublicParameters) Validate() error {
	if p.NumReplica <= 0 {
		return fmt.Errorf("numReplica must be positive")
	}
	if p.NumFaulty < 0 {
		return fmt.Errorf("numFaulty must not be negative")
	}
	if p.NumReplica != 3*p.NumFaulty+1 {
		return fmt.Errorf("numReplica (%d) must equal 3*numFaulty+1 (3*%d+1=%d)", p.NumReplica, p.NumFaulty, 3*p.NumFaulty+1)
	}
	if len(p.ReplicaAddrs) != p.NumReplica {
		return fmt.Errorf("replicaAddrs has %d entries, want %d (numReplica)", len(p.ReplicaAddrs), p.NumReplica)
	}
	if p.ResendInterval.Duration <= 0 {
		p.ResendInterval = Duration{100 * time.Millisecond}
	}
	if p.ViewChangeInterval.Duration <= 0 {
		p.ViewChangeInterval = Duration{1 * time.Second}
	}
	if p.BatchSizeOrTrigger <= 0 {
		p.BatchSizeOrTrigger = 1
	}
	if p.DataDir == "" {
		p.DataDir = "./murmesh-data"
	}
	if p.MetricsAddr == "" {
		p.MetricsAddr = "127.0.0.1:9090"
	}
	if p.Search.NumWorker <= 0 {
		p.Search.NumWorker = 4
	}
	if p.Search.MaxDepth <= 0 {
		p.Search.MaxDepth = 1000
	}
	if _, err := p.CryptoFlavorValue(); err != nil {
		return err
	}
	return nil
}

// CryptoFlavorValue resolves the configured scheme name to an
// xcrypto.Flavor, defaulting to Plain when unset.
func (p *PublicParameters) CryptoFlavorValue() (xcrypto.Flavor, error) {
	switch p.CryptoFlavor {
	case "", "plain":
		return xcrypto.Plain, nil
	case "secp256k1":
		return xcrypto.Secp256k1, nil
	case "schnorrkel":
		return xcrypto.Schnorrkel, nil
	default:
		return 0, fmt.Errorf("unknown cryptoFlavor %q", p.CryptoFlavor)
	}
}
