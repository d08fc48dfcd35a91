package nucleus

import (
	"github.com/google/uuid"

	"github.com/cuemby/holo/pkg/types"
)

// ZomeFnCall is a request to invoke one exported function of one zome,
// carrying whatever capability request authorizes the call.
type ZomeFnCall struct {
	ID         uuid.UUID
	ZomeName   string
	FnName     string
	Cap        types.CapabilityRequest
	Parameters []byte
}

// NewZomeFnCall builds a ZomeFnCall with a fresh id.
func NewZomeFnCall(zomeName, fnName string, cap types.CapabilityRequest, parameters []byte) ZomeFnCall {
	return ZomeFnCall{ID: uuid.New(), ZomeName: zomeName, FnName: fnName, Cap: cap, Parameters: parameters}
}

// QueueZomeFunctionCall requests validation and execution of a zome
// function call.
type QueueZomeFunctionCall struct {
	Call ZomeFnCall
}

func (QueueZomeFunctionCall) ActionName() string { return "QueueZomeFunctionCall" }

// ReturnZomeFunctionResult carries the completed outcome of a call
// previously admitted by QueueZomeFunctionCall, self-dispatched by the
// goroutine that ran it against the WASM engine.
type ReturnZomeFunctionResult struct {
	CallID uuid.UUID
	Output []byte
	Err    error
}

func (ReturnZomeFunctionResult) ActionName() string { return "ReturnZomeFunctionResult" }
