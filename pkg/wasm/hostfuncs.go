package wasm

import (
	"encoding/json"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/types"
)

func hostCommit(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req commitRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		var linkUpdateDelete *hash.Address
		if req.LinkUpdateDelete != "" {
			linkUpdateDelete = &req.LinkUpdateDelete
		}
		addr, err := h.host.Commit(fromWireEntry(req.Entry), linkUpdateDelete)
		if err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		resp, err := json.Marshal(commitResponse{Address: addr})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostGet(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req getRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		entry, err := h.host.Get(req.Address)
		if err != nil {
			return nil, holoerr.RibosomeEntryNotFound
		}
		resp, err := json.Marshal(getResponse{Entry: toWireEntry(entry)})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostLink(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req linkRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		op := LinkAdd
		if req.Op == "remove" {
			op = LinkRemove
		}
		if err := h.host.Link(op, req.Base, req.LinkType, req.Tag, req.Target); err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		return nil, holoerr.RibosomeSuccess
	}
}

func hostGetLinks(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req getLinksRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		targets, err := h.host.GetLinks(req.Base, req.LinkType, req.Tag)
		if err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		resp, err := json.Marshal(getLinksResponse{Targets: targets})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostQuery(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req queryRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		entry, err := h.host.Query(req.Address)
		if err != nil {
			return nil, holoerr.RibosomeEntryNotFound
		}
		resp, err := json.Marshal(getResponse{Entry: toWireEntry(entry)})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostSend(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req sendRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		reply, err := h.host.Send(req.To, req.Payload, req.AwaitReply)
		if err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		resp, err := json.Marshal(sendResponse{Payload: reply})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostDebug(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req debugRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		h.host.Debug(h.zome, req.Msg)
		return nil, holoerr.RibosomeSuccess
	}
}

func hostProperty(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req propertyRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		value, err := h.host.Property(req.Name)
		if err != nil {
			return nil, holoerr.RibosomeUnknownEntryType
		}
		resp, err := json.Marshal(propertyResponse{Value: value})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

// hostCallInner runs another zome function on the same call stack,
// rejecting the call outright if (zome, function) is already on it.
func hostCallInner(e *Engine, h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req callRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		if !h.stack.push(req.Zome, req.Function) {
			return nil, holoerr.RibosomeRecursiveCallForbidden
		}
		defer h.stack.pop()

		zome, err := h.host.ResolveZome(req.Zome)
		if err != nil {
			return nil, holoerr.RibosomeUnknownEntryType
		}
		result, err := e.callOnStack(zome, req.Function, req.Parameters, h.stack)
		if err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		resp, err := json.Marshal(callResponse{Result: result})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostCrypto(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req cryptoHashRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		resp, err := json.Marshal(cryptoHashResponse{Address: h.host.CryptoHash(req.Data)})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostSign(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req signRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		sig, err := h.host.Sign(req.Data)
		if err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		resp, err := json.Marshal(signResponse{Signature: sig})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostVerify(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req verifyRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		valid, err := h.host.Verify(req.Agent, req.Data, req.Signature)
		if err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		resp, err := json.Marshal(verifyResponse{Valid: valid})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostCapabilityGrant(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req capabilityGrantRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		token, err := h.host.GrantCapability(types.CapabilityType(req.Type), req.Assignees, fromWireCapFunctions(req.Functions))
		if err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		resp, err := json.Marshal(capabilityGrantResponse{Token: token})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostCapabilityClaim(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req capabilityClaimRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		addr, err := h.host.ClaimCapability(req.Grantor, req.Token)
		if err != nil {
			return nil, holoerr.RibosomeWorkflowFailed
		}
		resp, err := json.Marshal(capabilityClaimResponse{Address: addr})
		if err != nil {
			return nil, holoerr.RibosomeResponseSerializationFailed
		}
		return resp, holoerr.RibosomeSuccess
	}
}

func hostEmitSignal(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req emitSignalRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		h.host.EmitSignal(req.Name, req.Payload)
		return nil, holoerr.RibosomeSuccess
	}
}

func hostSleep(h *hostCall) func([]byte) ([]byte, holoerr.RibosomeFailure) {
	return func(reqData []byte) ([]byte, holoerr.RibosomeFailure) {
		var req sleepRequest
		if err := json.Unmarshal(reqData, &req); err != nil {
			return nil, holoerr.RibosomeArgumentDeserializationFailed
		}
		h.host.Sleep(req.Millis)
		return nil, holoerr.RibosomeSuccess
	}
}
