package wasm

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/metrics"
	"github.com/cuemby/holo/pkg/types"
)

// Engine compiles and runs zome WASM modules against a fixed host
// function vocabulary. It satisfies nucleus.Engine.
type Engine struct {
	wasmerEngine *wasmer.Engine
	host         Host
}

// New returns an Engine whose host functions are served by host.
func New(host Host) *Engine {
	return &Engine{wasmerEngine: wasmer.NewEngine(), host: host}
}

// Call runs zome.WasmCode's exported fnName with parameters and returns
// its response body, satisfying nucleus.Engine.
func (e *Engine) Call(zome *types.Zome, fnName string, parameters []byte) ([]byte, error) {
	stack := newCallStack(zome.Name, fnName)
	return e.callOnStack(zome, fnName, parameters, stack)
}

func (e *Engine) callOnStack(zome *types.Zome, fnName string, parameters []byte, stack *callStack) ([]byte, error) {
	store := wasmer.NewStore(e.wasmerEngine)
	module, err := wasmer.NewModule(store, zome.WasmCode)
	if err != nil {
		return nil, fmt.Errorf("%w: compile zome %q: %v", holoerr.ErrGeneric, zome.Name, err)
	}

	hctx := &hostCall{host: e.host, engine: e, stack: stack, zome: zome.Name}
	imports := e.registerHost(store, hctx)

	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return nil, fmt.Errorf("%w: instantiate zome %q: %v", holoerr.ErrGeneric, zome.Name, err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("%w: zome %q has no exported memory", holoerr.ErrGeneric, zome.Name)
	}
	hctx.mem = mem

	allocate, err := instance.Exports.GetFunction("allocate")
	if err != nil {
		return nil, fmt.Errorf("%w: zome %q has no exported allocate", holoerr.ErrGeneric, zome.Name)
	}
	hctx.allocate = allocate

	fn, err := instance.Exports.GetFunction(fnName)
	if err != nil {
		return nil, holoerr.ErrZomeFunctionNotFound
	}

	argAlloc, err := writeGuestAllocation(hctx, parameters)
	if err != nil {
		return nil, err
	}

	raw, err := fn(packAllocation(argAlloc))
	if err != nil {
		return nil, fmt.Errorf("%w: zome %q function %q trapped: %v", holoerr.ErrGeneric, zome.Name, fnName, err)
	}
	ret, ok := raw.(int64)
	if !ok {
		return nil, holoerr.RibosomeMismatchWasmCallDataType.Err()
	}

	body, hasBody, err := decodeReturn(ret)
	if err != nil {
		return nil, err
	}
	if !hasBody {
		return nil, nil
	}
	return readGuestAllocation(mem, body), nil
}

// hostCall is the per-invocation context every registered host function
// closes over: the guest memory and allocator, the recursion-forbidden
// call stack, and the Host implementation actually serving requests.
type hostCall struct {
	mem      *wasmer.Memory
	allocate wasmer.NativeFunction
	host     Host
	engine   *Engine
	stack    *callStack
	zome     string
}

func readGuestAllocation(mem *wasmer.Memory, a allocation) []byte {
	data := mem.Data()
	out := make([]byte, a.Length)
	copy(out, data[a.Offset:a.Offset+a.Length])
	return out
}

func writeGuestAllocation(h *hostCall, data []byte) (allocation, error) {
	raw, err := h.allocate(int32(len(data)))
	if err != nil {
		return allocation{}, fmt.Errorf("%w: guest allocate trapped: %v", holoerr.ErrGeneric, err)
	}
	offset, ok := raw.(int32)
	if !ok {
		return allocation{}, holoerr.RibosomeNotAnAllocation.Err()
	}
	a := allocation{Offset: uint32(offset), Length: uint32(len(data))}
	copy(h.mem.Data()[a.Offset:], data)
	return a, nil
}

// hostFunc is the shape every "env" import shares: decode a JSON request
// of type Req out of the caller's allocation, run it, encode a JSON
// response of type Resp (or none) back into a fresh guest allocation.
func hostFunc(store *wasmer.Store, h *hostCall, name string, fn func(reqData []byte) (respData []byte, failure holoerr.RibosomeFailure)) *wasmer.Function {
	return wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I64),
			wasmer.NewValueTypes(wasmer.I64),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			timer := metrics.NewTimer()
			defer timer.ObserveDurationVec(metrics.WasmInvocationsDuration, name)

			reqAlloc := unpackAllocation(args[0].I64())
			reqData := readGuestAllocation(h.mem, reqAlloc)

			respData, failure := fn(reqData)
			if failure != holoerr.RibosomeSuccess {
				metrics.WasmHostCallsTotal.WithLabelValues(name, "failure").Inc()
				return []wasmer.Value{wasmer.NewI64(packAllocation(allocation{Offset: uint32(failure), Length: 0}))}, nil
			}
			metrics.WasmHostCallsTotal.WithLabelValues(name, "success").Inc()
			if respData == nil {
				return []wasmer.Value{wasmer.NewI64(0)}, nil
			}
			respAlloc, err := writeGuestAllocation(h, respData)
			if err != nil {
				return []wasmer.Value{wasmer.NewI64(packAllocation(allocation{Offset: uint32(holoerr.RibosomeOutOfMemory), Length: 0}))}, nil
			}
			return []wasmer.Value{wasmer.NewI64(packAllocation(respAlloc))}, nil
		},
	)
}

func (e *Engine) registerHost(store *wasmer.Store, h *hostCall) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()
	imports.Register("env", map[string]wasmer.IntoExtern{
		"commit":           hostFunc(store, h, "commit", hostCommit(h)),
		"get":              hostFunc(store, h, "get", hostGet(h)),
		"link":             hostFunc(store, h, "link", hostLink(h)),
		"get_links":        hostFunc(store, h, "get_links", hostGetLinks(h)),
		"query":            hostFunc(store, h, "query", hostQuery(h)),
		"send":             hostFunc(store, h, "send", hostSend(h)),
		"debug":            hostFunc(store, h, "debug", hostDebug(h)),
		"property":         hostFunc(store, h, "property", hostProperty(h)),
		"call":             hostFunc(store, h, "call", hostCallInner(e, h)),
		"crypto":           hostFunc(store, h, "crypto", hostCrypto(h)),
		"sign":             hostFunc(store, h, "sign", hostSign(h)),
		"verify":           hostFunc(store, h, "verify", hostVerify(h)),
		"capability_grant": hostFunc(store, h, "capability_grant", hostCapabilityGrant(h)),
		"capability_claim": hostFunc(store, h, "capability_claim", hostCapabilityClaim(h)),
		"emit_signal":      hostFunc(store, h, "emit_signal", hostEmitSignal(h)),
		"sleep":            hostFunc(store, h, "sleep", hostSleep(h)),
	})
	return imports
}

