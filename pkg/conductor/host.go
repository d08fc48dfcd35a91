package conductor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/holo/pkg/chain"
	"github.com/cuemby/holo/pkg/dht"
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/keystore"
	"github.com/cuemby/holo/pkg/network"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
	"github.com/cuemby/holo/pkg/wasm"
)

// Engine runs a zome's callback synchronously. pkg/wasm.Engine
// satisfies this; it is the same shape nucleus.Engine and
// validation.Engine already use.
type Engine interface {
	Call(zome *types.Zome, fnName string, parameters []byte) ([]byte, error)
}

// queryDeadline bounds a Host.Query (or Host.Send) call's whole wait
// for remote responses; each network round trip inside it is further
// capped by network.requestDeadline (1s).
const queryDeadline = 2 * time.Second

// Host wires one instance's chain, DHT slice, keystore identity and
// network state together into a wasm.Host: every host function a zome
// call makes lands on one of these fields. It also satisfies
// validation.Resolver, validation.Holder and network.LocalData, since
// all three need the same chain/DHT/DNA access a Host already has.
type Host struct {
	dna       *types.DNA
	chain     *chain.Chain
	dht       *dht.Slice
	keys      *keystore.Keystore
	signingID string
	agent     hash.Address
	net       *network.State
	engine    Engine
	dispatch  func(state.Action) uuid.UUID
	logger    zerolog.Logger
}

// NewHost assembles a Host for one instance. net and engine may be
// wired in after construction via SetNetwork/SetEngine, since both
// themselves take a LocalData/Engine built from this Host.
func NewHost(dna *types.DNA, c *chain.Chain, d *dht.Slice, keys *keystore.Keystore, signingID string, agent hash.Address, dispatch func(state.Action) uuid.UUID, logger zerolog.Logger) *Host {
	return &Host{
		dna:       dna,
		chain:     c,
		dht:       d,
		keys:      keys,
		signingID: signingID,
		agent:     agent,
		dispatch:  dispatch,
		logger:    logger,
	}
}

// SetNetwork wires the network state a Host needs for Query, Send and
// publish fan-out, once it has been constructed against this Host as
// its LocalData.
func (h *Host) SetNetwork(n *network.State) { h.net = n }

// SetEngine wires the WASM engine a Host's MessageHandler delegates
// inbound messages to, once it has been constructed against this Host.
func (h *Host) SetEngine(e Engine) { h.engine = e }

// deriveAspect classifies a just-committed or just-validated entry
// into the EntryAspect variant that determines which dht action(s)
// holding it requires.
func deriveAspect(entry *types.Entry, header *types.ChainHeader) types.EntryAspect {
	variant := types.AspectContent
	switch entry.Type {
	case types.EntryTypeLinkAdd:
		variant = types.AspectLinkAdd
	case types.EntryTypeLinkRemove:
		variant = types.AspectLinkRemove
	case types.EntryTypeDeletion:
		variant = types.AspectDeletion
	default:
		if header.LinkUpdateDelete != nil {
			variant = types.AspectUpdate
		}
	}
	return types.EntryAspect{Variant: variant, Header: header, Entry: entry}
}

// applyHold dispatches the dht action(s) a held aspect requires: every
// variant first holds the entry itself (so it is fetchable by address
// and GetMostRecentHeaderForEntry/Aspect work), then records the
// variant-specific link or CRUD tuple.
func (h *Host) applyHold(aspect types.EntryAspect) error {
	if aspect.Variant == types.AspectHeader {
		return holoerr.ErrGeneric
	}
	h.dispatch(dht.HoldAction{Entry: aspect.Entry, Header: aspect.Header})

	switch aspect.Variant {
	case types.AspectLinkAdd:
		link := aspect.Entry.Link
		h.dispatch(dht.AddLinkAction{
			Base:          link.Base,
			LinkType:      link.LinkType,
			Tag:           link.Tag,
			LinkEntryAddr: aspect.Entry.Address(),
		})
	case types.AspectLinkRemove:
		link := aspect.Entry.Link
		h.dispatch(dht.RemoveLinkAction{
			Base:         link.Base,
			LinkType:     link.LinkType,
			Tag:          link.Tag,
			RemovedAddrs: aspect.Entry.RemovedAddrs,
		})
	case types.AspectUpdate:
		if aspect.Header.LinkUpdateDelete != nil {
			h.dispatch(dht.UpdateEntryAction{Old: *aspect.Header.LinkUpdateDelete, New: aspect.Entry.Address()})
		}
	case types.AspectDeletion:
		target := aspect.Entry.DeletionTarget
		if target == "" && aspect.Header.LinkUpdateDelete != nil {
			target = *aspect.Header.LinkUpdateDelete
		}
		h.dispatch(dht.RemoveEntryAction{Target: target})
	}
	return nil
}

// publishToPeers fans a Publish action out to every peer this
// instance's network state has seen connect, for entries that are
// allowed to leave their author.
func (h *Host) publishToPeers(addr hash.Address) {
	if h.net == nil {
		return
	}
	for _, peer := range h.net.Peers() {
		h.dispatch(network.Publish{EntryAddress: addr, ToAgent: peer})
	}
}

// Commit implements wasm.Host.
func (h *Host) Commit(entry *types.Entry, linkUpdateDelete *hash.Address) (hash.Address, error) {
	addr, err := h.chain.Commit(entry, linkUpdateDelete)
	if err != nil {
		return "", err
	}
	header, err := h.chain.Header(h.chain.Top())
	if err != nil {
		return "", err
	}
	if err := h.applyHold(deriveAspect(entry, header)); err != nil {
		return "", err
	}
	if entry.CanPublish() {
		h.publishToPeers(addr)
	}
	return addr, nil
}

// Get implements wasm.Host, reading an entry from the local CAS only.
func (h *Host) Get(addr hash.Address) (*types.Entry, error) {
	rec, err := h.dht.CAS.Get(addr)
	if err != nil {
		return nil, holoerr.ErrEntryNotFound
	}
	return types.DecodeEntry(rec.Data)
}

// resolveLinkTargets decodes each LinkAdd entry address GetLinks
// returns into the entry addresses its Link.Target actually names.
func (h *Host) resolveLinkTargets(linkEntryAddrs []hash.Address) ([]hash.Address, error) {
	targets := make([]hash.Address, 0, len(linkEntryAddrs))
	for _, addr := range linkEntryAddrs {
		entry, err := h.Get(addr)
		if err != nil {
			return nil, err
		}
		if entry.Link != nil {
			targets = append(targets, entry.Link.Target)
		}
	}
	return targets, nil
}

// Link implements wasm.Host by committing a LinkAdd or LinkRemove
// entry through the instance's own chain, the same path any other
// Commit takes.
func (h *Host) Link(op wasm.LinkOp, base hash.Address, linkType, tag string, target hash.Address) error {
	switch op {
	case wasm.LinkAdd:
		entry := &types.Entry{Type: types.EntryTypeLinkAdd, Link: &types.LinkData{Base: base, Target: target, LinkType: linkType, Tag: tag}}
		_, err := h.Commit(entry, nil)
		return err
	case wasm.LinkRemove:
		existing, err := h.dht.GetLinks(base, linkType, tag, dht.AllLinks)
		if err != nil {
			return err
		}
		var removed []hash.Address
		for _, addr := range existing {
			e, err := h.Get(addr)
			if err != nil {
				return err
			}
			if e.Link != nil && e.Link.Target == target {
				removed = append(removed, addr)
			}
		}
		entry := &types.Entry{
			Type:         types.EntryTypeLinkRemove,
			Link:         &types.LinkData{Base: base, Target: target, LinkType: linkType, Tag: tag},
			RemovedAddrs: removed,
		}
		_, err = h.Commit(entry, nil)
		return err
	default:
		return holoerr.ErrGeneric
	}
}

// GetLinks implements wasm.Host, resolving each live LinkAdd entry
// address the DHT slice has recorded down to the target it names.
func (h *Host) GetLinks(base hash.Address, linkType, tag string) ([]hash.Address, error) {
	addrs, err := h.dht.GetLinks(base, linkType, tag, dht.LiveLinks)
	if err != nil {
		return nil, err
	}
	return h.resolveLinkTargets(addrs)
}

// Query implements wasm.Host by trying each known peer in turn until
// one answers, since the host function ABI carries no target agent.
func (h *Host) Query(addr hash.Address) (*types.Entry, error) {
	if h.net == nil {
		return nil, holoerr.ErrEntryNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryDeadline)
	defer cancel()
	var lastErr error
	for _, peer := range h.net.Peers() {
		aspects, err := h.net.Query(ctx, addr, peer)
		if err != nil {
			lastErr = err
			continue
		}
		for _, a := range aspects {
			if a.Entry != nil {
				return a.Entry, nil
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, holoerr.ErrEntryNotFound
}

// Send implements wasm.Host.
func (h *Host) Send(to hash.Address, payload []byte, awaitReply bool) ([]byte, error) {
	if h.net == nil {
		return nil, holoerr.ErrGeneric
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryDeadline)
	defer cancel()
	return h.net.SendDirectMessage(ctx, to, payload, awaitReply)
}

// Debug implements wasm.Host.
func (h *Host) Debug(zome, msg string) {
	h.logger.Debug().Str("zome", zome).Msg(msg)
}

// Property implements wasm.Host.
func (h *Host) Property(name string) (string, error) {
	v, ok := h.dna.Properties[name]
	if !ok {
		return "", holoerr.ErrGeneric
	}
	s, ok := v.(string)
	if !ok {
		return "", holoerr.ErrGeneric
	}
	return s, nil
}

// ResolveZome implements wasm.Host.
func (h *Host) ResolveZome(name string) (*types.Zome, error) {
	z, ok := h.dna.ZomeByName(name)
	if !ok {
		return nil, holoerr.ErrZomeNotFound
	}
	return z, nil
}

// CryptoHash implements wasm.Host.
func (h *Host) CryptoHash(data []byte) hash.Address {
	return hash.Of(data)
}

// Sign implements wasm.Host.
func (h *Host) Sign(data []byte) ([]byte, error) {
	return h.keys.Sign(h.signingID, data)
}

// Verify implements wasm.Host.
func (h *Host) Verify(agent hash.Address, data, signature []byte) (bool, error) {
	return keystore.Verify(agent, data, signature)
}

// MakeCapRequest implements wasm.Host, signing (token, function,
// parameters) under the calling agent's own key.
func (h *Host) MakeCapRequest(token hash.Address, function string, parameters []byte) (types.CapabilityRequest, error) {
	req := types.CapabilityRequest{Token: token, Caller: h.agent, Function: function, Parameters: parameters}
	sig, err := h.keys.Sign(h.signingID, append(append([]byte(token), []byte(function)...), parameters...))
	if err != nil {
		return types.CapabilityRequest{}, err
	}
	req.Signature = sig
	return req, nil
}

// GrantCapability implements wasm.Host by committing a CapTokenGrant
// entry; the grant's own entry address is the token other agents
// present back in a CapabilityRequest.
func (h *Host) GrantCapability(capType types.CapabilityType, assignees []hash.Address, functions []types.CapabilityFunction) (hash.Address, error) {
	entry := &types.Entry{
		Type: types.EntryTypeCapTokenGrant,
		CapToken: &types.CapabilityToken{
			Type:      capType,
			Assignees: assignees,
			Functions: functions,
		},
	}
	return h.Commit(entry, nil)
}

// ClaimCapability implements wasm.Host by committing a CapTokenClaim
// entry referencing the grantor and the grant token received from
// them; the grantor is recorded in the claim's own Assignees slot
// since Entry carries no separate grantor field.
func (h *Host) ClaimCapability(grantor hash.Address, token hash.Address) (hash.Address, error) {
	entry := &types.Entry{
		Type: types.EntryTypeCapTokenClaim,
		CapToken: &types.CapabilityToken{
			ID:        token,
			Assignees: []hash.Address{grantor},
		},
	}
	return h.Commit(entry, nil)
}

// EmitSignal implements wasm.Host; signals have no chain or network
// effect in this runtime, only a debug-level log line.
func (h *Host) EmitSignal(name string, payload []byte) {
	h.logger.Debug().Str("signal", name).Int("payload_bytes", len(payload)).Msg("signal emitted")
}

// Sleep implements wasm.Host.
func (h *Host) Sleep(millis int64) {
	time.Sleep(time.Duration(millis) * time.Millisecond)
}

// EntryTypeDef implements validation.Resolver by scanning every zome's
// EntryTypeDefs for appEntryType, since the requirement is declared
// per zome rather than once per DNA.
func (h *Host) EntryTypeDef(appEntryType string) (types.ValidationPackageRequirement, *types.Zome, bool) {
	for i := range h.dna.Zomes {
		z := &h.dna.Zomes[i]
		if req, ok := z.EntryTypeDefs[appEntryType]; ok {
			return req, z, true
		}
	}
	return "", nil, false
}

// HoldAspect implements validation.Holder.
func (h *Host) HoldAspect(aspect types.EntryAspect) error {
	return h.applyHold(aspect)
}

// Has implements network.LocalData.
func (h *Host) Has(addr hash.Address) bool { return h.dht.CAS.Has(addr) }

// LocalAspects implements network.LocalData.
func (h *Host) LocalAspects(addr hash.Address) ([]types.EntryAspect, error) {
	return h.dht.LocalAspects(addr)
}

// Aspect implements network.LocalData.
func (h *Host) Aspect(addr hash.Address) (*types.EntryAspect, error) {
	return h.dht.Aspect(addr)
}

// Authored implements network.LocalData.
func (h *Host) Authored() ([]hash.Address, error) { return h.chain.Authored() }

// Held implements network.LocalData.
func (h *Host) Held() ([]hash.Address, error) { return h.dht.Held() }

// collectChain walks it to exhaustion, decoding each header's entry
// too when withEntries is set.
func (h *Host) collectChain(it *chain.Iterator, withEntries bool) ([]*types.ChainHeader, []*types.Entry, error) {
	var headers []*types.ChainHeader
	var entries []*types.Entry
	for {
		hdr, ok, err := it.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return headers, entries, nil
		}
		headers = append(headers, hdr)
		if withEntries {
			entry, err := h.Get(hdr.EntryAddress)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, entry)
		}
	}
}

// ValidationPackage implements network.LocalData by reconstructing the
// chain context headerAddr's entry type requires, per its zome's
// declared ValidationPackageRequirement.
func (h *Host) ValidationPackage(headerAddr hash.Address) (*types.ValidationPackage, error) {
	header, err := h.chain.Header(headerAddr)
	if err != nil {
		return nil, err
	}
	entry, err := h.Get(header.EntryAddress)
	if err != nil {
		return nil, err
	}

	req := types.PackageEntry
	if entry.Type == types.EntryTypeApp {
		if r, _, ok := h.EntryTypeDef(entry.AppEntryType); ok {
			req = r
		}
	}

	pkg := &types.ValidationPackage{Requirement: req}
	switch req {
	case types.PackageChainHeaders:
		pkg.ChainHeaders, _, err = h.collectChain(h.chain.IterType(headerAddr), false)
	case types.PackageChainEntries:
		pkg.ChainHeaders, pkg.ChainEntries, err = h.collectChain(h.chain.IterType(headerAddr), true)
	case types.PackageChainFull:
		pkg.ChainHeaders, pkg.ChainEntries, err = h.collectChain(h.chain.Iter(headerAddr), true)
	}
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

// HandleMessage implements network.MessageHandler by routing an
// inbound direct message to the zome function named "receive", if any
// zome in the DNA declares one. Instances whose DNA declares no such
// function simply acknowledge with an empty reply.
func (h *Host) HandleMessage(from hash.Address, payload []byte) ([]byte, error) {
	if h.engine == nil {
		return nil, nil
	}
	for i := range h.dna.Zomes {
		z := &h.dna.Zomes[i]
		if _, ok := z.FnDeclByName("receive"); ok {
			return h.engine.Call(z, "receive", payload)
		}
	}
	return nil, nil
}
