package wasm

import "github.com/cuemby/holo/pkg/types"

func toWireEntry(e *types.Entry) *wireEntry {
	if e == nil {
		return nil
	}
	return &wireEntry{
		Type:           string(e.Type),
		AgentName:      e.AgentName,
		AgentPublicKey: e.AgentPublicKey,
		AppEntryType:   e.AppEntryType,
		AppPayload:     e.AppPayload,
	}
}

func fromWireEntry(w *wireEntry) *types.Entry {
	if w == nil {
		return nil
	}
	return &types.Entry{
		Type:           types.EntryType(w.Type),
		AgentName:      w.AgentName,
		AgentPublicKey: w.AgentPublicKey,
		AppEntryType:   w.AppEntryType,
		AppPayload:     w.AppPayload,
	}
}

func toWireCap(c types.CapabilityRequest) wireCapabilityRequest {
	return wireCapabilityRequest{Token: c.Token, Caller: c.Caller, Function: c.Function, Signature: c.Signature}
}

func fromWireCap(w wireCapabilityRequest) types.CapabilityRequest {
	return types.CapabilityRequest{Token: w.Token, Caller: w.Caller, Function: w.Function, Signature: w.Signature}
}

func toWireCapFunctions(fs []types.CapabilityFunction) []wireCapabilityFunction {
	out := make([]wireCapabilityFunction, 0, len(fs))
	for _, f := range fs {
		out = append(out, wireCapabilityFunction{Zome: f.Zome, Function: f.Function})
	}
	return out
}

func fromWireCapFunctions(fs []wireCapabilityFunction) []types.CapabilityFunction {
	out := make([]types.CapabilityFunction, 0, len(fs))
	for _, f := range fs {
		out = append(out, types.CapabilityFunction{Zome: f.Zome, Function: f.Function})
	}
	return out
}
