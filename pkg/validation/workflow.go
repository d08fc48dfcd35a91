package validation

import (
	"encoding/json"
	"time"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/metrics"
	"github.com/cuemby/holo/pkg/types"
)

// handle runs the aspect-variant dispatch step (spec §4.4 step 1-4) for
// one arriving EntryAspect.
func (s *State) handle(aspect types.EntryAspect) {
	logger := s.logger.With().Str("variant", string(aspect.Variant)).Logger()

	if aspect.Variant == types.AspectHeader {
		logger.Warn().Msg("rejecting reserved header aspect")
		return
	}
	if aspect.Header == nil || aspect.Entry == nil {
		logger.Warn().Msg("dropping aspect with missing header or entry")
		return
	}
	if aspect.Header.EntryAddress != aspect.Entry.Address() {
		logger.Warn().
			Str("header_entry_address", string(aspect.Header.EntryAddress)).
			Str("entry_address", string(aspect.Entry.Address())).
			Msg("dropping aspect: header/entry address mismatch")
		return
	}

	requirement, zome, ok := s.resolver.EntryTypeDef(aspect.Entry.AppEntryType)
	if !ok {
		// Entries of system types (or types absent from the DNA) carry
		// no zome validator; they hold unconditionally once the address
		// check above has passed.
		s.holdAspect(aspect)
		return
	}

	if requirement == types.PackageEntry {
		s.runValidator(aspect, zome, &types.ValidationPackage{Requirement: requirement})
		return
	}

	s.enqueuePending(aspect, zome, requirement)
}

// runValidator invokes zome's validation callback for aspect, given a
// (possibly partial, for PackageEntry) package, and on success dispatches
// HoldAspect. Validation failure is terminal for the aspect: no retry.
func (s *State) runValidator(aspect types.EntryAspect, zome *types.Zome, pkg *types.ValidationPackage) {
	logger := s.logger.With().Str("zome", zome.Name).Str("entry_type", aspect.Entry.AppEntryType).Logger()

	params, err := json.Marshal(validatorRequest{Aspect: aspect, Package: pkg})
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal validator request")
		return
	}

	fnName := "validate_" + aspect.Entry.AppEntryType
	_, err = s.engine.Call(zome, fnName, params)
	if err != nil {
		logger.Info().Err(err).Msg("validation failed, dropping aspect")
		metrics.ValidationOutcomesTotal.WithLabelValues(string(aspect.Variant), "failed").Inc()
		return
	}

	metrics.ValidationOutcomesTotal.WithLabelValues(string(aspect.Variant), "held").Inc()
	s.holdAspect(aspect)
}

// validatorRequest is the JSON request a zome's validate_<entry_type>
// export receives, following the same request/response ABI pkg/wasm's
// host functions use.
type validatorRequest struct {
	Aspect  types.EntryAspect        `json:"aspect"`
	Package *types.ValidationPackage `json:"package"`
}

func (s *State) holdAspect(aspect types.EntryAspect) {
	if err := s.holder.HoldAspect(aspect); err != nil {
		s.logger.Error().Err(err).Msg("failed to hold validated aspect")
	}
}

// enqueuePending records aspect in the pending-validation queue and
// issues its first GetValidationPackage request.
func (s *State) enqueuePending(aspect types.EntryAspect, zome *types.Zome, requirement types.ValidationPackageRequirement) {
	headerAddr := aspect.Hash()

	s.mu.Lock()
	if _, exists := s.pending[headerAddr]; exists {
		s.mu.Unlock()
		return
	}
	s.pending[headerAddr] = &pendingAspect{
		aspect:      aspect,
		zome:        zome,
		requirement: requirement,
		nextRetry:   time.Now().Add(retryBackoff),
	}
	s.mu.Unlock()
	metrics.ValidationPendingGauge.Inc()

	s.requestFor(headerAddr, aspect)
}

func (s *State) requestFor(headerAddr hash.Address, aspect types.EntryAspect) {
	author := aspect.Header.Provenances[0].Agent
	if err := s.requester.RequestValidationPackage(author, aspect.Header); err != nil {
		s.logger.Debug().Err(err).Str("header_address", string(headerAddr)).
			Msg("validation package request failed")
	}
}

// receivePackage handles ReceiveValidationPackage: on success it runs
// the validator and clears the pending entry; Timeout and other
// transient errors leave the entry queued for the next Prune retry;
func (s *State) receivePackage(a ReceiveValidationPackage) {
	s.mu.Lock()
	pending, ok := s.pending[a.HeaderAddress]
	s.mu.Unlock()
	if !ok {
		return
	}

	if a.Err != nil {
		s.logger.Debug().Err(a.Err).Str("header_address", string(a.HeaderAddress)).
			Msg("validation package fetch failed, will retry")
		return
	}

	s.mu.Lock()
	delete(s.pending, a.HeaderAddress)
	s.mu.Unlock()
	metrics.ValidationPendingGauge.Dec()

	s.runValidator(pending.aspect, pending.zome, a.Package)
}

// prune re-issues requests for pending aspects whose retry deadline has
// passed, and drops aspects whose retry budget is exhausted.
func (s *State) prune() {
	now := time.Now()

	s.mu.Lock()
	var toRetry, toDrop []hash.Address
	for addr, p := range s.pending {
		if now.Before(p.nextRetry) {
			continue
		}
		if p.attempts >= s.retryBudget {
			toDrop = append(toDrop, addr)
			continue
		}
		p.attempts++
		p.nextRetry = now.Add(retryBackoff)
		toRetry = append(toRetry, addr)
	}
	dropped := make([]*pendingAspect, 0, len(toDrop))
	for _, addr := range toDrop {
		dropped = append(dropped, s.pending[addr])
		delete(s.pending, addr)
	}
	retrying := make(map[hash.Address]types.EntryAspect, len(toRetry))
	for _, addr := range toRetry {
		retrying[addr] = s.pending[addr].aspect
	}
	s.mu.Unlock()

	for _, p := range dropped {
		s.logger.Warn().Str("entry_type", p.aspect.Entry.AppEntryType).
			Msg("validation package retry budget exhausted, dropping aspect")
		metrics.ValidationPendingGauge.Dec()
		metrics.ValidationOutcomesTotal.WithLabelValues(string(p.aspect.Variant), "dropped").Inc()
	}
	for addr, aspect := range retrying {
		s.requestFor(addr, aspect)
	}
}
