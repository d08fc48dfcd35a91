package conductor

import (
	"context"
	"sync"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/network"
)

// meshTransportQueueSize bounds the per-agent inbound buffer, matching
// pkg/network's own transport queue sizing.
const meshTransportQueueSize = 512

// mesh routes envelopes between every instance sharing one DNA space
// within this process by ToAgentID, for the common local multi-agent
// scenario where NetworkConfig.Listen names no external gRPC address.
// It is the conductor-local analogue of pkg/network's pairwise
// LoopbackTransport, generalized from two endpoints to N, with an
// optional external Transport as the default route for any address the
// mesh has no local member for.
type mesh struct {
	mu       sync.Mutex
	peers    map[hash.Address]*meshTransport
	external network.Transport
}

func newMesh() *mesh {
	return &mesh{peers: make(map[hash.Address]*meshTransport)}
}

// join registers agent on the mesh and returns its Transport.
func (m *mesh) join(agent hash.Address) *meshTransport {
	t := &meshTransport{agent: agent, hub: m, in: make(chan network.Envelope, meshTransportQueueSize)}
	m.mu.Lock()
	m.peers[agent] = t
	m.mu.Unlock()
	return t
}

// agents returns every agent currently joined, for wiring PeerConnected
// actions between every pair once a space's instances are all up.
func (m *mesh) agents() []hash.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hash.Address, 0, len(m.peers))
	for a := range m.peers {
		out = append(out, a)
	}
	return out
}

// setExternal wires t as the mesh's default route for any ToAgentID no
// local peer claims, and starts pumping t's inbound envelopes to
// whichever local peer they address.
func (m *mesh) setExternal(t network.Transport) {
	m.mu.Lock()
	m.external = t
	m.mu.Unlock()
	go func() {
		for e := range t.Recv() {
			m.mu.Lock()
			peer, ok := m.peers[e.ToAgentID]
			m.mu.Unlock()
			if !ok {
				continue
			}
			select {
			case peer.in <- e:
			default:
			}
		}
	}()
}

type meshTransport struct {
	agent hash.Address
	hub   *mesh
	in    chan network.Envelope
}

// Send delivers e to a local peer named by e.ToAgentID if one has
// joined the mesh, otherwise forwards it over the mesh's external
// route (if any), otherwise drops it silently.
func (t *meshTransport) Send(ctx context.Context, e network.Envelope) error {
	t.hub.mu.Lock()
	peer, ok := t.hub.peers[e.ToAgentID]
	ext := t.hub.external
	t.hub.mu.Unlock()
	if ok {
		select {
		case peer.in <- e:
		default:
		}
		return nil
	}
	if ext != nil {
		return ext.Send(ctx, e)
	}
	return nil
}

func (t *meshTransport) Recv() <-chan network.Envelope { return t.in }

func (t *meshTransport) Close() error {
	t.hub.mu.Lock()
	delete(t.hub.peers, t.agent)
	t.hub.mu.Unlock()
	return nil
}
