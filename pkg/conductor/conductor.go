package conductor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/cuemby/holo/pkg/dna"
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/keystore"
	"github.com/cuemby/holo/pkg/log"
	"github.com/cuemby/holo/pkg/metrics"
	"github.com/cuemby/holo/pkg/network"
	"github.com/cuemby/holo/pkg/types"
)

// dialTimeout bounds Conductor.Start's attempt to reach a configured
// peer conductor over gRPC.
const dialTimeout = 5 * time.Second

// Conductor owns every instance a TOML config describes: it loads each
// named DNA once, provisions each named agent's signing identity once,
// and assembles one Instance per instances[] entry, wiring instances
// that share a DNA space together on an in-process mesh. It is the
// thing a caller (cmd/holo, mainly) constructs and starts; nothing
// about it is a package-level singleton.
type Conductor struct {
	mu        sync.Mutex
	cfg       *Config
	keys      *keystore.Keystore
	dnas      map[string]*types.DNA
	agents    map[string]hash.Address
	instances map[string]*Instance
	meshes    map[hash.Address]*mesh
	grpcSrv   *grpc.Server
	logger    zerolog.Logger
}

// New returns a Conductor for cfg. It does no I/O; call Start to load
// DNAs, provision agents and bring every configured instance up.
func New(cfg *Config) *Conductor {
	return &Conductor{
		cfg:       cfg,
		keys:      keystore.New(),
		dnas:      make(map[string]*types.DNA),
		agents:    make(map[string]hash.Address),
		instances: make(map[string]*Instance),
		meshes:    make(map[hash.Address]*mesh),
		logger:    log.WithComponent("conductor"),
	}
}

// Instance returns the named instance, or ok=false if no such instance
// was configured.
func (c *Conductor) Instance(id string) (*Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.instances[id]
	return in, ok
}

// Instances returns every configured instance, in no particular order.
func (c *Conductor) Instances() []*Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Instance, 0, len(c.instances))
	for _, in := range c.instances {
		out = append(out, in)
	}
	return out
}

// loadDNAs reads and parses every configured DNA package once.
func (c *Conductor) loadDNAs() error {
	for _, d := range c.cfg.DNAs {
		data, err := os.ReadFile(d.File)
		if err != nil {
			return fmt.Errorf("%w: read dna %q: %v", holoerr.ErrConfig, d.ID, err)
		}
		parsed, err := dna.Load(data)
		if err != nil {
			return fmt.Errorf("%w: load dna %q: %v", holoerr.ErrConfig, d.ID, err)
		}
		c.dnas[d.ID] = parsed
	}
	return nil
}

// provisionAgents derives a signing keypair for every configured agent
// from a freshly generated root seed, storing the keypair under the
// agent's own id so pkg/chain.New's signingID parameter can reference
// it directly.
func (c *Conductor) provisionAgents() error {
	for _, a := range c.cfg.Agents {
		seedID := a.KeystoreID
		if seedID == "" {
			seedID = a.ID + "-seed"
		}
		if err := c.keys.AddRandomSeed(seedID); err != nil {
			return fmt.Errorf("%w: provision agent %q: %v", holoerr.ErrConfig, a.ID, err)
		}
		addr, err := c.keys.AddKeyFromSeed(seedID, a.ID, "agent", 0)
		if err != nil {
			return fmt.Errorf("%w: derive agent %q key: %v", holoerr.ErrConfig, a.ID, err)
		}
		c.agents[a.ID] = addr
	}
	return nil
}

// meshFor returns (creating if absent) the mesh every instance sharing
// space talks over.
func (c *Conductor) meshFor(space hash.Address) *mesh {
	m, ok := c.meshes[space]
	if !ok {
		m = newMesh()
		c.meshes[space] = m
	}
	return m
}

// Start loads every DNA, provisions every agent, assembles every
// configured instance and starts its dispatcher. If the config's
// network section names a listen or dial address, the resulting gRPC
// transport becomes every DNA space's default route for peers outside
// this process; absent that, instances only ever talk to other
// instances sharing their DNA space within this process.
func (c *Conductor) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadDNAs(); err != nil {
		return err
	}
	if err := c.provisionAgents(); err != nil {
		return err
	}

	for _, instCfg := range c.cfg.Instances {
		dnaDef, ok := c.dnas[instCfg.DNA]
		if !ok {
			return fmt.Errorf("%w: instance %q: dna %q not loaded", holoerr.ErrConfig, instCfg.ID, instCfg.DNA)
		}
		agent, ok := c.agents[instCfg.Agent]
		if !ok {
			return fmt.Errorf("%w: instance %q: agent %q not provisioned", holoerr.ErrConfig, instCfg.ID, instCfg.Agent)
		}
		agentName := instCfg.Agent
		for _, a := range c.cfg.Agents {
			if a.ID == instCfg.Agent {
				agentName = a.Name
				break
			}
		}
		dataDir, err := instanceDataDir(instCfg)
		if err != nil {
			return err
		}

		space := dnaDef.Address()
		m := c.meshFor(space)
		transport := network.Transport(m.join(agent))

		inst, err := buildInstance(instCfg, agentName, dnaDef, c.keys, agent, dataDir, transport)
		if err != nil {
			return err
		}
		c.instances[instCfg.ID] = inst
	}

	// A configured network listen/dial address becomes every space's
	// default route for recipients no local mesh member claims, so one
	// conductor process can gossip with another over the wire without
	// every instance needing its own gRPC connection.
	if c.cfg.Network.Listen != "" || c.cfg.Network.DialAddr != "" {
		if err := c.wireGRPC(); err != nil {
			return err
		}
	}

	// Every instance sharing a space already knows of every peer via
	// the mesh's join; announce each pair to the other's network.State
	// so Peers() (used for Publish fan-out and Query/Send target
	// selection) is populated.
	for _, m := range c.meshes {
		agents := m.agents()
		for _, inst := range c.instances {
			for _, peer := range agents {
				if peer == inst.Agent() {
					continue
				}
				inst.Dispatcher().Dispatch(network.PeerConnected{Peer: peer})
			}
		}
	}

	for id, inst := range c.instances {
		if err := inst.Start(); err != nil {
			return fmt.Errorf("%w: start instance %q: %v", holoerr.ErrConfig, id, err)
		}
		metrics.ConductorInstancesTotal.WithLabelValues(string(statusActive)).Inc()
	}
	return nil
}

// wireGRPC brings up the externally reachable transport the network
// config's listen/dial address describes. Every accepted or dialed
// connection becomes the default route (mesh.setExternal) for every
// DNA space this conductor hosts; a dial failure falls back to
// mesh-only rather than failing Start, since a second conductor
// process may not be up yet.
func (c *Conductor) wireGRPC() error {
	tlsCfg := network.TLSConfig{
		CertFile: c.cfg.Network.CertFile,
		KeyFile:  c.cfg.Network.KeyFile,
		CAFile:   c.cfg.Network.CAFile,
		Insecure: c.cfg.Network.Insecure,
	}

	if c.cfg.Network.Listen != "" {
		lis, err := network.Listen(c.cfg.Network.Listen)
		if err != nil {
			return fmt.Errorf("%w: listen %q: %v", holoerr.ErrConfig, c.cfg.Network.Listen, err)
		}
		srv, err := network.NewGRPCServer(tlsCfg, func(t network.Transport) {
			c.adoptExternal(t)
		})
		if err != nil {
			lis.Close()
			return err
		}
		go srv.Serve(lis)
		c.grpcSrv = srv
		c.logger.Info().Str("addr", c.cfg.Network.Listen).Msg("gRPC transport listening")
	}

	if c.cfg.Network.DialAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		t, err := network.DialGRPC(ctx, c.cfg.Network.DialAddr, tlsCfg)
		if err != nil {
			c.logger.Warn().Err(err).Str("addr", c.cfg.Network.DialAddr).Msg("gRPC dial failed, falling back to mesh-only")
			return nil
		}
		c.adoptExternal(t)
	}
	return nil
}

// adoptExternal makes t the default route for every DNA space this
// conductor hosts, replacing any prior external route (e.g. on
// reconnect).
func (c *Conductor) adoptExternal(t network.Transport) {
	for _, m := range c.meshes {
		m.setExternal(t)
	}
}

// ActiveInstances implements metrics.Source.
func (c *Conductor) ActiveInstances() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, inst := range c.instances {
		if inst.IsActive() {
			n++
		}
	}
	return n
}

// InactiveInstances implements metrics.Source.
func (c *Conductor) InactiveInstances() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, inst := range c.instances {
		if !inst.IsActive() {
			n++
		}
	}
	return n
}

// HeldAspects implements metrics.Source by summing every active
// instance's held-entry count.
func (c *Conductor) HeldAspects() int {
	c.mu.Lock()
	instances := make([]*Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		instances = append(instances, inst)
	}
	c.mu.Unlock()

	total := 0
	for _, inst := range instances {
		if !inst.IsActive() {
			continue
		}
		if n, err := inst.HeldCount(); err == nil {
			total += n
		}
	}
	return total
}

// GossipPeers implements metrics.Source by summing every active
// instance's tracked peer count.
func (c *Conductor) GossipPeers() int {
	c.mu.Lock()
	instances := make([]*Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		instances = append(instances, inst)
	}
	c.mu.Unlock()

	total := 0
	for _, inst := range instances {
		if inst.IsActive() {
			total += inst.PeerCount()
		}
	}
	return total
}

// Stop stops every instance's dispatcher and releases its storage.
func (c *Conductor) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, inst := range c.instances {
		if !inst.IsActive() {
			continue
		}
		if err := inst.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop instance %q: %w", id, err)
		}
		metrics.ConductorInstancesTotal.WithLabelValues(string(statusActive)).Dec()
		metrics.ConductorInstancesTotal.WithLabelValues(string(statusInactive)).Inc()
	}
	if c.grpcSrv != nil {
		c.grpcSrv.Stop()
	}
	return firstErr
}
