// Package network implements the network actor: one per tracked DNA
// space, it turns Query/SendDirectMessage/Publish/GetValidationPackage
// intents into wire Envelopes over a Transport, matches arriving
// responses back to the slot that is waiting for them, and times out
// slots whose deadline elapses with no response. It satisfies
// validation.Requester so the validation pipeline can ask an entry's
// author for a package without knowing anything about wire transport.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/log"
	"github.com/cuemby/holo/pkg/metrics"
	"github.com/cuemby/holo/pkg/state"
	"github.com/cuemby/holo/pkg/types"
	"github.com/cuemby/holo/pkg/validation"
)

// requestDeadline is the default timeout for a Query, SendDirectMessage,
// or GetValidationPackage round trip absent a caller-supplied deadline.
const requestDeadline = 1 * time.Second

// LocalData is the local read surface the network actor answers
// inbound requests from peers against: held/authored entry lists, a
// single entry's held aspects, and the validation package for a header
// this agent authored. pkg/conductor wires a concrete implementation
// backed by pkg/dht and pkg/chain; tests substitute a stub.
type LocalData interface {
	// Has reports whether entryAddr is already held locally.
	Has(entryAddr hash.Address) bool
	// LocalAspects returns every aspect this node holds for entryAddr.
	LocalAspects(entryAddr hash.Address) ([]types.EntryAspect, error)
	// Aspect returns the single most useful aspect for entryAddr, for
	// gossip pull responses.
	Aspect(entryAddr hash.Address) (*types.EntryAspect, error)
	// Authored returns every entry address this agent's source chain
	// has authored.
	Authored() ([]hash.Address, error)
	// Held returns every entry address this node holds in its DHT slice.
	Held() ([]hash.Address, error)
	// ValidationPackage builds the validation package for a header this
	// agent authored, per that header's entry type's requirement.
	ValidationPackage(headerAddr hash.Address) (*types.ValidationPackage, error)
}

// MessageHandler answers an inbound SendMessage expecting a reply. If a
// State has no handler wired, inbound messages with ExpectReply set get
// an empty acknowledgement.
type MessageHandler interface {
	HandleMessage(from hash.Address, payload []byte) ([]byte, error)
}

type queryOutcome struct {
	aspects []types.EntryAspect
	err     error
}

type dmOutcome struct {
	payload []byte
	err     error
}

type pendingFetch struct {
	entryAddr hash.Address
}

// State is the network slice of the dispatcher snapshot: one per
// tracked DNA space. It satisfies state.Reducer via Reducer and
// validation.Requester via RequestValidationPackage.
type State struct {
	mu sync.Mutex

	space   hash.Address
	agent   hash.Address
	peers   map[hash.Address]bool
	local   LocalData
	handler MessageHandler

	transport Transport
	dispatch  func(state.Action) uuid.UUID

	queryWait map[QueryKey]chan queryOutcome
	dmWait    map[uuid.UUID]chan dmOutcome
	vpPending map[hash.Address]bool
	fetchWait map[uuid.UUID]pendingFetch

	logger zerolog.Logger
}

// New returns a State for the given DNA space and local agent, sending
// over transport and dispatching self-generated actions (timeouts,
// ReceiveValidationPackage completions) through dispatch. handler may be
// nil, in which case inbound direct messages expecting a reply get an
// empty ack.
func New(space, agent hash.Address, local LocalData, transport Transport, dispatch func(state.Action) uuid.UUID, handler MessageHandler) *State {
	return &State{
		space:     space,
		agent:     agent,
		peers:     make(map[hash.Address]bool),
		local:     local,
		handler:   handler,
		transport: transport,
		dispatch:  dispatch,
		queryWait: make(map[QueryKey]chan queryOutcome),
		dmWait:    make(map[uuid.UUID]chan dmOutcome),
		vpPending: make(map[hash.Address]bool),
		fetchWait: make(map[uuid.UUID]pendingFetch),
		logger:    log.WithComponent("network"),
	}
}

// Peers returns the agents this State has seen a PeerConnected for, for
// callers (pkg/conductor's host adapter, mainly) that need to fan a
// freshly authored entry's Publish out to every known peer rather than
// one named recipient.
func (s *State) Peers() []hash.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hash.Address, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Pump reads transport.Recv() until ctx is done, dispatching each
// arriving Envelope as an InboundEnvelope action. It is meant to run in
// its own goroutine for the lifetime of the instance.
func (s *State) Pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-s.transport.Recv():
			if !ok {
				return
			}
			if s.dispatch != nil {
				s.dispatch(InboundEnvelope{Env: env})
			}
		}
	}
}

// Reducer is the state.Reducer bound to this space's network slice.
func (s *State) Reducer(prev interface{}, full *state.Snapshot, w state.Wrapped) interface{} {
	switch a := w.Action.(type) {
	case Query:
		s.reduceQuery(a)
	case QueryTimeout:
		s.reduceQueryTimeout(a)
	case SendDirectMessage:
		s.reduceSendDirectMessage(a)
	case SendDirectMessageTimeout:
		s.reduceSendDirectMessageTimeout(a)
	case Publish:
		s.reducePublish(a)
	case PeerConnected:
		s.reducePeerConnected(a)
	case GetValidationPackage:
		s.reduceGetValidationPackage(a)
	case GetValidationPackageTimeout:
		s.reduceGetValidationPackageTimeout(a)
	case InboundEnvelope:
		s.reduceInbound(a.Env)
	}
	return s
}

// Query blocks until addr resolves against toAgent, the request
// deadline passes, or ctx is cancelled, whichever comes first.
func (s *State) Query(ctx context.Context, addr hash.Address, toAgent hash.Address) ([]types.EntryAspect, error) {
	key := QueryKey{RequestID: uuid.New(), EntryAddr: addr}
	ch := make(chan queryOutcome, 1)
	s.mu.Lock()
	s.queryWait[key] = ch
	s.mu.Unlock()

	deadline := time.Now().Add(requestDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.dispatch(Query{Key: key, ToAgent: toAgent, Deadline: deadline})

	select {
	case out := <-ch:
		return out.aspects, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendDirectMessage delivers payload to toAgent, blocking for a reply
// if awaitReply is set.
func (s *State) SendDirectMessage(ctx context.Context, toAgent hash.Address, payload []byte, awaitReply bool) ([]byte, error) {
	msgID := uuid.New()
	deadline := time.Now().Add(requestDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var ch chan dmOutcome
	if awaitReply {
		ch = make(chan dmOutcome, 1)
		s.mu.Lock()
		s.dmWait[msgID] = ch
		s.mu.Unlock()
	}

	s.dispatch(SendDirectMessage{MsgID: msgID, ToAgent: toAgent, Payload: payload, ExpectReply: awaitReply, Deadline: deadline})

	if !awaitReply {
		return nil, nil
	}
	select {
	case out := <-ch:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestValidationPackage satisfies validation.Requester: it issues a
// GetValidationPackage request to author and returns immediately. The
// result arrives asynchronously as a ReceiveValidationPackage action
// dispatched back through the same Dispatcher.
func (s *State) RequestValidationPackage(author hash.Address, header *types.ChainHeader) error {
	headerAddr := header.Address()

	s.mu.Lock()
	if s.vpPending[headerAddr] {
		s.mu.Unlock()
		return nil
	}
	s.vpPending[headerAddr] = true
	s.mu.Unlock()

	s.dispatch(GetValidationPackage{HeaderAddress: headerAddr, Author: author, Deadline: time.Now().Add(requestDeadline)})
	return nil
}

func (s *State) reduceQuery(a Query) {
	env := Envelope{
		Kind:        KindQueryEntry,
		RequestID:   a.Key.RequestID,
		SpaceAddr:   s.space,
		FromAgentID: s.agent,
		ToAgentID:   a.ToAgent,
		Payload:     mustMarshal(queryEntryPayload{EntryAddress: a.Key.EntryAddr}),
	}
	go func() {
		if err := s.transport.Send(context.Background(), env); err != nil {
			s.logger.Warn().Err(err).Msg("network: query send failed")
		}
		time.AfterFunc(time.Until(a.Deadline), func() { s.dispatch(QueryTimeout{Key: a.Key}) })
	}()
}

func (s *State) reduceQueryTimeout(a QueryTimeout) {
	s.mu.Lock()
	ch, ok := s.queryWait[a.Key]
	delete(s.queryWait, a.Key)
	s.mu.Unlock()
	if !ok {
		return
	}
	metrics.NetworkQueryTimeoutsTotal.Inc()
	ch <- queryOutcome{err: fmt.Errorf("%w: query %s", holoerr.ErrTimeout, a.Key.EntryAddr)}
}

func (s *State) reduceSendDirectMessage(a SendDirectMessage) {
	env := Envelope{
		Kind:        KindSendMessage,
		RequestID:   a.MsgID,
		SpaceAddr:   s.space,
		FromAgentID: s.agent,
		ToAgentID:   a.ToAgent,
		Payload:     mustMarshal(sendMessagePayload{ExpectReply: a.ExpectReply, Payload: a.Payload}),
	}
	go func() {
		if err := s.transport.Send(context.Background(), env); err != nil {
			s.logger.Warn().Err(err).Msg("network: send message failed")
		}
		if a.ExpectReply {
			time.AfterFunc(time.Until(a.Deadline), func() { s.dispatch(SendDirectMessageTimeout{MsgID: a.MsgID}) })
		}
	}()
}

func (s *State) reduceSendDirectMessageTimeout(a SendDirectMessageTimeout) {
	s.mu.Lock()
	ch, ok := s.dmWait[a.MsgID]
	delete(s.dmWait, a.MsgID)
	s.mu.Unlock()
	if !ok {
		return
	}
	metrics.NetworkQueryTimeoutsTotal.Inc()
	ch <- dmOutcome{err: fmt.Errorf("%w: direct message %s", holoerr.ErrTimeout, a.MsgID)}
}

func (s *State) reducePublish(a Publish) {
	aspects, err := s.local.LocalAspects(a.EntryAddress)
	if err != nil {
		s.logger.Warn().Err(err).Str("entry", string(a.EntryAddress)).Msg("network: publish: no local aspects")
		return
	}
	for _, asp := range aspects {
		env := Envelope{
			Kind:        KindHandleStoreEntryAspect,
			RequestID:   uuid.New(),
			SpaceAddr:   s.space,
			FromAgentID: s.agent,
			ToAgentID:   a.ToAgent,
			Payload:     mustMarshal(storeEntryAspectPayload{Aspect: asp}),
		}
		if err := s.transport.Send(context.Background(), env); err != nil {
			s.logger.Warn().Err(err).Msg("network: publish send failed")
		}
	}
}

func (s *State) reducePeerConnected(a PeerConnected) {
	s.mu.Lock()
	s.peers[a.Peer] = true
	count := len(s.peers)
	s.mu.Unlock()
	metrics.NetworkGossipPeersGauge.Set(float64(count))

	for _, kind := range []Kind{KindHandleGetAuthoringEntryList, KindHandleGetHoldingEntryList} {
		env := Envelope{
			Kind:        kind,
			RequestID:   uuid.New(),
			SpaceAddr:   s.space,
			FromAgentID: s.agent,
			ToAgentID:   a.Peer,
		}
		if err := s.transport.Send(context.Background(), env); err != nil {
			s.logger.Warn().Err(err).Msg("network: peer-connected gossip request failed")
		}
	}
}

func (s *State) reduceGetValidationPackage(a GetValidationPackage) {
	env := Envelope{
		Kind:        KindGetValidationPackage,
		RequestID:   uuid.New(),
		SpaceAddr:   s.space,
		FromAgentID: s.agent,
		ToAgentID:   a.Author,
		Payload:     mustMarshal(validationPackagePayload{HeaderAddress: a.HeaderAddress}),
	}
	go func() {
		if err := s.transport.Send(context.Background(), env); err != nil {
			s.logger.Warn().Err(err).Msg("network: get validation package send failed")
		}
		time.AfterFunc(time.Until(a.Deadline), func() { s.dispatch(GetValidationPackageTimeout{HeaderAddress: a.HeaderAddress}) })
	}()
}

func (s *State) reduceGetValidationPackageTimeout(a GetValidationPackageTimeout) {
	s.mu.Lock()
	pending := s.vpPending[a.HeaderAddress]
	delete(s.vpPending, a.HeaderAddress)
	s.mu.Unlock()
	if !pending {
		return
	}
	s.dispatch(validation.ReceiveValidationPackage{
		HeaderAddress: a.HeaderAddress,
		Err:           fmt.Errorf("%w: validation package %s", holoerr.ErrTimeout, a.HeaderAddress),
	})
}

func (s *State) reduceInbound(env Envelope) {
	metrics.NetworkMessagesTotal.WithLabelValues(string(env.Kind), "recv").Inc()

	if env.SpaceAddr != s.space {
		s.logger.Debug().Err(holoerr.ErrSpaceMismatch).
			Str("space_address", string(env.SpaceAddr)).
			Str("kind", string(env.Kind)).
			Msg("dropping envelope for a foreign space")
		return
	}

	switch env.Kind {
	case KindQueryEntry:
		s.handleQueryEntry(env)
	case KindQueryEntryResult:
		s.handleQueryEntryResult(env)
	case KindSendMessage:
		s.handleSendMessage(env)
	case KindSendMessageResult:
		s.handleSendMessageResult(env)
	case KindHandleStoreEntryAspect:
		s.handleStoreEntryAspect(env)
	case KindPeerConnected, KindConnected:
		s.dispatch(PeerConnected{Peer: env.FromAgentID})
	case KindHandleGetAuthoringEntryList:
		s.respondEntryList(env, KindGetAuthoringEntryListResult, s.local.Authored)
	case KindHandleGetHoldingEntryList:
		s.respondEntryList(env, KindGetHoldingEntryListResult, s.local.Held)
	case KindGetAuthoringEntryListResult, KindGetHoldingEntryListResult:
		s.handleEntryListResult(env)
	case KindHandleFetchEntry:
		s.handleFetchEntry(env)
	case KindFetchEntryResult:
		s.handleFetchEntryResult(env)
	case KindGetValidationPackage:
		s.handleGetValidationPackage(env)
	case KindGetValidationPackageResult:
		s.handleGetValidationPackageResult(env)
	}
}

func (s *State) handleQueryEntry(env Envelope) {
	var p queryEntryPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	aspects, err := s.local.LocalAspects(p.EntryAddress)
	result := queryEntryResultPayload{Aspects: aspects}
	if err != nil {
		result.Err = err.Error()
	}
	reply := Envelope{
		Kind:        KindQueryEntryResult,
		RequestID:   env.RequestID,
		SpaceAddr:   s.space,
		FromAgentID: s.agent,
		ToAgentID:   env.FromAgentID,
		Payload:     mustMarshal(result),
	}
	if err := s.transport.Send(context.Background(), reply); err != nil {
		s.logger.Warn().Err(err).Msg("network: query reply send failed")
	}
}

func (s *State) handleQueryEntryResult(env Envelope) {
	var p queryEntryResultPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	s.mu.Lock()
	var ch chan queryOutcome
	for k, c := range s.queryWait {
		if k.RequestID == env.RequestID {
			ch = c
			delete(s.queryWait, k)
			break
		}
	}
	s.mu.Unlock()
	if ch == nil {
		return
	}
	out := queryOutcome{aspects: p.Aspects}
	if p.Err != "" {
		out.err = fmt.Errorf("%w: %s", holoerr.ErrEntryNotFound, p.Err)
	}
	ch <- out
}

func (s *State) handleSendMessage(env Envelope) {
	var p sendMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	if !p.ExpectReply {
		return
	}
	var reply []byte
	var replyErr string
	if s.handler != nil {
		out, err := s.handler.HandleMessage(env.FromAgentID, p.Payload)
		if err != nil {
			replyErr = err.Error()
		}
		reply = out
	}
	env2 := Envelope{
		Kind:        KindSendMessageResult,
		RequestID:   env.RequestID,
		SpaceAddr:   s.space,
		FromAgentID: s.agent,
		ToAgentID:   env.FromAgentID,
		Payload:     mustMarshal(sendMessageResultPayload{Payload: reply, Err: replyErr}),
	}
	if err := s.transport.Send(context.Background(), env2); err != nil {
		s.logger.Warn().Err(err).Msg("network: send-message reply failed")
	}
}

func (s *State) handleSendMessageResult(env Envelope) {
	var p sendMessageResultPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	s.mu.Lock()
	ch, ok := s.dmWait[env.RequestID]
	delete(s.dmWait, env.RequestID)
	s.mu.Unlock()
	if !ok {
		return
	}
	out := dmOutcome{payload: p.Payload}
	if p.Err != "" {
		out.err = fmt.Errorf("%w: %s", holoerr.ErrGeneric, p.Err)
	}
	ch <- out
}

func (s *State) handleStoreEntryAspect(env Envelope) {
	var p storeEntryAspectPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	s.dispatch(validation.HandleEntryAspect{Aspect: p.Aspect})
}

func (s *State) respondEntryList(env Envelope, resultKind Kind, list func() ([]hash.Address, error)) {
	addrs, err := list()
	if err != nil {
		s.logger.Warn().Err(err).Msg("network: entry list lookup failed")
		return
	}
	reply := Envelope{
		Kind:        resultKind,
		RequestID:   env.RequestID,
		SpaceAddr:   s.space,
		FromAgentID: s.agent,
		ToAgentID:   env.FromAgentID,
		Payload:     mustMarshal(entryListPayload{Addresses: addrs}),
	}
	if err := s.transport.Send(context.Background(), reply); err != nil {
		s.logger.Warn().Err(err).Msg("network: entry list reply failed")
	}
}

func (s *State) handleEntryListResult(env Envelope) {
	var p entryListPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	for _, addr := range p.Addresses {
		if s.local.Has(addr) {
			continue
		}
		reqID := uuid.New()
		s.mu.Lock()
		s.fetchWait[reqID] = pendingFetch{entryAddr: addr}
		s.mu.Unlock()
		req := Envelope{
			Kind:        KindHandleFetchEntry,
			RequestID:   reqID,
			SpaceAddr:   s.space,
			FromAgentID: s.agent,
			ToAgentID:   env.FromAgentID,
			Payload:     mustMarshal(fetchEntryPayload{EntryAddress: addr}),
		}
		if err := s.transport.Send(context.Background(), req); err != nil {
			s.logger.Warn().Err(err).Msg("network: fetch-entry request failed")
		}
	}
}

func (s *State) handleFetchEntry(env Envelope) {
	var p fetchEntryPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	aspect, err := s.local.Aspect(p.EntryAddress)
	result := fetchEntryPayload{EntryAddress: p.EntryAddress, Aspect: aspect}
	if err != nil {
		result.Err = err.Error()
	}
	reply := Envelope{
		Kind:        KindFetchEntryResult,
		RequestID:   env.RequestID,
		SpaceAddr:   s.space,
		FromAgentID: s.agent,
		ToAgentID:   env.FromAgentID,
		Payload:     mustMarshal(result),
	}
	if err := s.transport.Send(context.Background(), reply); err != nil {
		s.logger.Warn().Err(err).Msg("network: fetch-entry reply failed")
	}
}

func (s *State) handleFetchEntryResult(env Envelope) {
	var p fetchEntryPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	s.mu.Lock()
	_, ok := s.fetchWait[env.RequestID]
	delete(s.fetchWait, env.RequestID)
	s.mu.Unlock()
	if !ok || p.Aspect == nil {
		return
	}
	s.dispatch(validation.HandleEntryAspect{Aspect: *p.Aspect})
}

func (s *State) handleGetValidationPackage(env Envelope) {
	var p validationPackagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	pkg, err := s.local.ValidationPackage(p.HeaderAddress)
	result := validationPackagePayload{HeaderAddress: p.HeaderAddress, Package: pkg}
	if err != nil {
		result.Err = err.Error()
	}
	reply := Envelope{
		Kind:        KindGetValidationPackageResult,
		RequestID:   env.RequestID,
		SpaceAddr:   s.space,
		FromAgentID: s.agent,
		ToAgentID:   env.FromAgentID,
		Payload:     mustMarshal(result),
	}
	if err := s.transport.Send(context.Background(), reply); err != nil {
		s.logger.Warn().Err(err).Msg("network: validation package reply failed")
	}
}

func (s *State) handleGetValidationPackageResult(env Envelope) {
	var p validationPackagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	s.mu.Lock()
	pending := s.vpPending[p.HeaderAddress]
	delete(s.vpPending, p.HeaderAddress)
	s.mu.Unlock()
	if !pending {
		return
	}
	a := validation.ReceiveValidationPackage{HeaderAddress: p.HeaderAddress, Package: p.Package}
	if p.Err != "" {
		a.Err = fmt.Errorf("%w: %s", holoerr.ErrGeneric, p.Err)
	}
	s.dispatch(a)
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
