package conductor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/holo/pkg/cas"
	"github.com/cuemby/holo/pkg/chain"
	"github.com/cuemby/holo/pkg/dht"
	"github.com/cuemby/holo/pkg/eav"
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/keystore"
	"github.com/cuemby/holo/pkg/log"
	"github.com/cuemby/holo/pkg/network"
	"github.com/cuemby/holo/pkg/nucleus"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
	"github.com/cuemby/holo/pkg/validation"
	"github.com/cuemby/holo/pkg/wasm"
)

// agentState is the on-disk record of an instance's chain position,
// read back on restart so Chain.Restore can re-establish top-of-chain
// bookkeeping by walking that instance's chain once from the recorded
// top header to genesis.
type agentState struct {
	TopChainHeader hash.Address `json:"top_chain_header"`
}

func agentStatePath(dataDir string) string {
	return filepath.Join(dataDir, "agent_state.json")
}

func loadAgentState(dataDir string) (*agentState, error) {
	data, err := os.ReadFile(agentStatePath(dataDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st agentState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: decode agent state: %v", holoerr.ErrSerialization, err)
	}
	return &st, nil
}

func saveAgentState(dataDir string, top hash.Address) error {
	data, err := json.Marshal(agentState{TopChainHeader: top})
	if err != nil {
		return fmt.Errorf("%w: encode agent state: %v", holoerr.ErrSerialization, err)
	}
	return os.WriteFile(agentStatePath(dataDir), data, 0600)
}

// instanceStatus is the value pkg/metrics.ConductorInstancesTotal is
// labeled with, mirroring the original's "not started/active/stopped"
// instance lifecycle states.
type instanceStatus string

const (
	statusActive   instanceStatus = "active"
	statusInactive instanceStatus = "inactive"
)

// Instance is one running DNA: its storage, chain, DHT slice, WASM
// engine, nucleus/validation/network state machines, and the
// dispatcher those state machines share. Every named slice is
// registered on the same Dispatcher so a single-writer goroutine
// serializes every action this instance's host functions and gossip
// traffic produce.
type Instance struct {
	mu         sync.Mutex
	id         string
	agent      hash.Address
	dna        *types.DNA
	dataDir    string
	dispatcher *state.Dispatcher
	host       *Host
	net        *network.State
	chain      *chain.Chain
	dht        *dht.Slice
	cas        *cas.Store
	eav        *eav.Store
	active     bool
	logger     zerolog.Logger
}

// ID returns the instance's configured identifier.
func (in *Instance) ID() string { return in.id }

// Agent returns the agent address this instance commits as.
func (in *Instance) Agent() hash.Address { return in.agent }

// DNA returns the instance's loaded DNA descriptor.
func (in *Instance) DNA() *types.DNA { return in.dna }

// Dispatcher exposes the shared single-writer dispatcher.
func (in *Instance) Dispatcher() *state.Dispatcher { return in.dispatcher }

// HostAdapter exposes the instance's wasm.Host/validation/network adapter.
func (in *Instance) HostAdapter() *Host { return in.host }

// Chain exposes the instance's source chain, for callers (cmd/holo's
// "chain show", mainly) that walk it read-only rather than author to it.
func (in *Instance) Chain() *chain.Chain { return in.chain }

// HeldCount returns the number of entries this instance's DHT slice
// currently holds, for metrics resync.
func (in *Instance) HeldCount() (int, error) {
	held, err := in.dht.Held()
	if err != nil {
		return 0, err
	}
	return len(held), nil
}

// PeerCount returns the number of gossip peers this instance's network
// state has seen connect, for metrics resync.
func (in *Instance) PeerCount() int {
	return len(in.net.Peers())
}

// Start launches the instance's dispatcher goroutine. It is an error
// to Start an already-active instance.
func (in *Instance) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active {
		return holoerr.ErrInstanceActive
	}
	in.dispatcher.Start()
	in.active = true
	return nil
}

// Stop halts the instance's dispatcher goroutine, persists its chain
// position and releases its storage handles. It is an error to Stop an
// inactive instance.
func (in *Instance) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.active {
		return holoerr.ErrInstanceNotActive
	}
	in.dispatcher.Stop()
	in.active = false
	var err error
	if serr := saveAgentState(in.dataDir, in.chain.Top()); serr != nil {
		err = serr
	}
	if cerr := in.cas.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if eerr := in.eav.Close(); eerr != nil && err == nil {
		err = eerr
	}
	return err
}

// IsActive reports whether the instance's dispatcher is running.
func (in *Instance) IsActive() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active
}

// buildInstance assembles one Instance's full stack: storage, identity,
// chain, DHT slice, host adapter, nucleus/validation/network state, and
// a dispatcher with every reducer registered. transport is supplied by
// the Conductor, which decides the mesh/gRPC topology across instances
// sharing a DNA space. On a fresh dataDir the chain is bootstrapped with
// its Dna and AgentId genesis entries (the only two commits
// onlySystemMayCommit permits at chain positions 0 and 1); on a dataDir
// carrying a prior run's agent_state.json, the chain's top-of-chain
// bookkeeping is restored instead.
func buildInstance(cfg InstanceConfig, agentName string, dnaDef *types.DNA, keys *keystore.Keystore, agent hash.Address, dataDir string, transport network.Transport) (*Instance, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create instance data dir: %v", holoerr.ErrIO, err)
	}

	casStore, err := cas.Open(dataDir)
	if err != nil {
		return nil, err
	}
	eavStore, err := eav.Open(dataDir)
	if err != nil {
		casStore.Close()
		return nil, err
	}

	logger := log.WithComponent("conductor").With().Str("instance", cfg.ID).Logger()

	signingID := cfg.Agent
	c := chain.New(casStore, keys, signingID)
	slice := dht.NewSlice(casStore, eavStore)

	priorState, err := loadAgentState(dataDir)
	if err != nil {
		casStore.Close()
		eavStore.Close()
		return nil, err
	}
	if priorState != nil {
		if err := c.Restore(priorState.TopChainHeader); err != nil {
			casStore.Close()
			eavStore.Close()
			return nil, err
		}
	} else {
		if _, err := c.Commit(&types.Entry{Type: types.EntryTypeDna, DNA: dnaDef}, nil); err != nil {
			casStore.Close()
			eavStore.Close()
			return nil, err
		}
		if _, err := c.Commit(&types.Entry{Type: types.EntryTypeAgentID, AgentName: agentName, AgentPublicKey: agent}, nil); err != nil {
			casStore.Close()
			eavStore.Close()
			return nil, err
		}
		if err := saveAgentState(dataDir, c.Top()); err != nil {
			casStore.Close()
			eavStore.Close()
			return nil, err
		}
	}

	dispatcher := state.New(map[string]interface{}{})

	host := NewHost(dnaDef, c, slice, keys, signingID, agent, dispatcher.Dispatch, logger)
	engine := wasm.New(host)
	host.SetEngine(engine)

	nucleusState := nucleus.New(casStore, engine, agent, dispatcher.Dispatch)
	nucleusState.SetDNA(dnaDef)

	netState := network.New(dnaDef.Address(), agent, host, transport, dispatcher.Dispatch, host)
	host.SetNetwork(netState)
	validationState := validation.New(host, engine, netState, host)

	dispatcher.Register("dht", slice.Reducer)
	dispatcher.Register("nucleus", nucleusState.Reducer)
	dispatcher.Register("validation", validationState.Reducer)
	dispatcher.Register("network", netState.Reducer)

	return &Instance{
		id:         cfg.ID,
		agent:      agent,
		dna:        dnaDef,
		dataDir:    dataDir,
		dispatcher: dispatcher,
		host:       host,
		net:        netState,
		chain:      c,
		dht:        slice,
		cas:        casStore,
		eav:        eavStore,
		logger:     logger,
	}, nil
}

// instanceDataDir derives the on-disk directory for an instance given
// its storage config, creating a private temp directory for the
// Memory kind since pkg/cas and pkg/eav are both bbolt-backed and need
// some file path regardless.
func instanceDataDir(cfg InstanceConfig) (string, error) {
	switch cfg.Storage.Kind {
	case StoragePickle:
		if cfg.Storage.Path == "" {
			return "", fmt.Errorf("%w: instance %q: pickle storage needs a path", holoerr.ErrConfig, cfg.ID)
		}
		return cfg.Storage.Path, nil
	default:
		return os.MkdirTemp("", "holo-"+filepath.Base(cfg.ID)+"-")
	}
}
