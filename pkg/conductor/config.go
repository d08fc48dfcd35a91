// Package conductor assembles and runs DNA instances: it loads the TOML
// configuration spec.md §6 names, wires each instance's chain/DHT/
// nucleus/validation/network slices to a shared dispatcher, and exposes
// a process-wide instance registry owned by whatever constructs a
// Conductor (never a package-level singleton).
package conductor

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/log"
)

// StorageKind selects an instance's persistence backend.
type StorageKind string

const (
	StorageMemory StorageKind = "memory"
	StoragePickle StorageKind = "pickle"
)

// AgentConfig names a keystore identity: the seed to derive signing keys
// from and the identifier under which it is stored.
type AgentConfig struct {
	ID         string `toml:"id"`
	Name       string `toml:"name"`
	PublicKey  string `toml:"public_key,omitempty"`
	KeystoreID string `toml:"keystore_id"`
}

// DNAConfig names a packaged DNA file on disk.
type DNAConfig struct {
	ID   string `toml:"id"`
	File string `toml:"file"`
	Hash string `toml:"hash,omitempty"`
}

// StorageConfig selects Memory or Pickle{Path}, mirroring spec.md §6's
// `Memory | Pickle { path }` instance storage variant.
type StorageConfig struct {
	Kind StorageKind `toml:"kind"`
	Path string      `toml:"path,omitempty"`
}

// InstanceConfig binds one agent to one DNA over one storage backend.
type InstanceConfig struct {
	ID      string        `toml:"id"`
	Agent   string        `toml:"agent"`
	DNA     string        `toml:"dna"`
	Storage StorageConfig `toml:"storage"`
}

// InterfaceKind selects the transport an interface exposes, mirroring
// spec.md §6's `Websocket { port } | Http { port }`.
type InterfaceKind string

const (
	InterfaceWebsocket InterfaceKind = "websocket"
	InterfaceHTTP      InterfaceKind = "http"
)

// InterfaceConfig exposes a conductor-wide admin/zome-call surface.
type InterfaceConfig struct {
	ID        string        `toml:"id"`
	Kind      InterfaceKind `toml:"kind"`
	Port      int           `toml:"port"`
	Instances []string      `toml:"instances,omitempty"`
}

// NetworkConfig controls the gossip transport every instance's
// network.State shares. Listen/DialAddr name the gRPC address this
// conductor process exposes and/or dials; the resulting transport
// becomes every DNA space's default route for peers this process has
// no local mesh member for. Leave both empty to run mesh-only.
type NetworkConfig struct {
	Listen          string `toml:"listen,omitempty"`
	DialAddr        string `toml:"dial_addr,omitempty"`
	Insecure        bool   `toml:"insecure,omitempty"`
	CertFile        string `toml:"cert_file,omitempty"`
	KeyFile         string `toml:"key_file,omitempty"`
	CAFile          string `toml:"ca_file,omitempty"`
	GossipIntervalS int    `toml:"gossip_interval_seconds,omitempty"`
}

// LoggerConfig mirrors pkg/log.Config's fields for TOML loading.
type LoggerConfig struct {
	Level      string `toml:"level,omitempty"`
	JSONOutput bool   `toml:"json,omitempty"`
}

// Config is the parsed shape of a conductor TOML file: spec.md §6's
// `agents[]`, `dnas[]`, `instances[]`, `interfaces[]`, `network`,
// `logger` sections, nothing more. Loading a Config does no I/O beyond
// reading this one file; resolving DNA file paths and starting
// instances is New/Conductor.Start's job.
type Config struct {
	Agents     []AgentConfig     `toml:"agents"`
	DNAs       []DNAConfig       `toml:"dnas"`
	Instances  []InstanceConfig  `toml:"instances"`
	Interfaces []InterfaceConfig `toml:"interfaces"`
	Network    NetworkConfig     `toml:"network"`
	Logger     LoggerConfig      `toml:"logger"`
}

// LoadConfig reads and parses a conductor TOML file from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read conductor config: %v", holoerr.ErrConfig, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse conductor config: %v", holoerr.ErrConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate cross-checks references between sections: every instance
// must name an agent and a DNA actually declared in this config, every
// interface must name instances actually declared. This is the config's
// own referential-integrity check, distinct from the later failures
// instance construction can still hit (missing DNA file, bad seed).
func (c *Config) validate() error {
	agents := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent entry missing id", holoerr.ErrConfig)
		}
		agents[a.ID] = true
	}
	dnas := make(map[string]bool, len(c.DNAs))
	for _, d := range c.DNAs {
		if d.ID == "" {
			return fmt.Errorf("%w: dna entry missing id", holoerr.ErrConfig)
		}
		dnas[d.ID] = true
	}
	instances := make(map[string]bool, len(c.Instances))
	for _, inst := range c.Instances {
		if inst.ID == "" {
			return fmt.Errorf("%w: instance entry missing id", holoerr.ErrConfig)
		}
		if !agents[inst.Agent] {
			return fmt.Errorf("%w: instance %q references undefined agent %q", holoerr.ErrConfig, inst.ID, inst.Agent)
		}
		if !dnas[inst.DNA] {
			return fmt.Errorf("%w: instance %q references undefined dna %q", holoerr.ErrConfig, inst.ID, inst.DNA)
		}
		instances[inst.ID] = true
	}
	for _, iface := range c.Interfaces {
		for _, instID := range iface.Instances {
			if !instances[instID] {
				return fmt.Errorf("%w: interface %q references undefined instance %q", holoerr.ErrConfig, iface.ID, instID)
			}
		}
	}
	return nil
}

// InitLogger applies the config's Logger section to the global logger,
// matching the teacher's cobra initLogging hook.
func (c *Config) InitLogger() {
	level := log.InfoLevel
	switch c.Logger.Level {
	case "trace":
		level = log.TraceLevel
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: c.Logger.JSONOutput})
}
