package wasm

import "github.com/cuemby/holo/pkg/hash"

// The structs below are the JSON wire shapes host functions read out of
// guest memory and write back into it. One request shape per entry in
// the host function vocabulary, plus a response shape for those that
// return a body (query reuses getResponse); kept separate from engine.go
// for readability.

type commitRequest struct {
	Entry            *wireEntry   `json:"entry"`
	LinkUpdateDelete hash.Address `json:"link_update_delete,omitempty"`
}
type commitResponse struct {
	Address hash.Address `json:"address"`
}

type getRequest struct {
	Address hash.Address `json:"address"`
}
type getResponse struct {
	Entry *wireEntry `json:"entry"`
}

type linkRequest struct {
	Op       string       `json:"op"`
	Base     hash.Address `json:"base"`
	LinkType string       `json:"link_type"`
	Tag      string       `json:"tag"`
	Target   hash.Address `json:"target"`
}

type getLinksRequest struct {
	Base     hash.Address `json:"base"`
	LinkType string       `json:"link_type"`
	Tag      string       `json:"tag"`
}
type getLinksResponse struct {
	Targets []hash.Address `json:"targets"`
}

type queryRequest struct {
	Address hash.Address `json:"address"`
}

type sendRequest struct {
	To         hash.Address `json:"to"`
	Payload    []byte       `json:"payload"`
	AwaitReply bool         `json:"await_reply"`
}
type sendResponse struct {
	Payload []byte `json:"payload"`
}

type debugRequest struct {
	Msg string `json:"msg"`
}

type propertyRequest struct {
	Name string `json:"name"`
}
type propertyResponse struct {
	Value string `json:"value"`
}

type callRequest struct {
	Zome       string                `json:"zome"`
	Function   string                `json:"function"`
	Cap        wireCapabilityRequest `json:"cap"`
	Parameters []byte                `json:"parameters"`
}
type callResponse struct {
	Result []byte `json:"result"`
}

type cryptoHashRequest struct {
	Data []byte `json:"data"`
}
type cryptoHashResponse struct {
	Address hash.Address `json:"address"`
}

type signRequest struct {
	Data []byte `json:"data"`
}
type signResponse struct {
	Signature []byte `json:"signature"`
}

type verifyRequest struct {
	Agent     hash.Address `json:"agent"`
	Data      []byte       `json:"data"`
	Signature []byte       `json:"signature"`
}
type verifyResponse struct {
	Valid bool `json:"valid"`
}

type capabilityGrantRequest struct {
	Type      string                   `json:"type"`
	Assignees []hash.Address           `json:"assignees,omitempty"`
	Functions []wireCapabilityFunction `json:"functions"`
}
type capabilityGrantResponse struct {
	Token hash.Address `json:"token"`
}

type capabilityClaimRequest struct {
	Grantor hash.Address `json:"grantor"`
	Token   hash.Address `json:"token"`
}
type capabilityClaimResponse struct {
	Address hash.Address `json:"address"`
}

type emitSignalRequest struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

type sleepRequest struct {
	Millis int64 `json:"millis"`
}

// wireEntry, wireCapabilityRequest and wireCapabilityFunction are the
// JSON shapes of types.Entry/types.CapabilityRequest/
// types.CapabilityFunction crossing the guest boundary; distinct from
// types.CanonicalEntry's addressing form since the guest never needs to
// compute an address itself, only read and write entry content.
type wireEntry struct {
	Type           string       `json:"type"`
	AgentName      string       `json:"agent_name,omitempty"`
	AgentPublicKey hash.Address `json:"agent_public_key,omitempty"`
	AppEntryType   string       `json:"app_entry_type,omitempty"`
	AppPayload     []byte       `json:"app_payload,omitempty"`
}

type wireCapabilityRequest struct {
	Token     hash.Address `json:"token"`
	Caller    hash.Address `json:"caller"`
	Function  string       `json:"function"`
	Signature []byte       `json:"signature"`
}

type wireCapabilityFunction struct {
	Zome     string `json:"zome"`
	Function string `json:"function"`
}
