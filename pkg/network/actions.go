package network

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/holo/pkg/hash"
)

// Query asks the network actor to resolve an entry address, first
// against a peer's local store (HandleQueryEntry) and records a result
// slot keyed by QueryKey so a later QueryEntryResult or QueryTimeout
// can be matched back to the caller that dispatched this action.
type Query struct {
	Key      QueryKey
	ToAgent  hash.Address
	Deadline time.Time
}

func (Query) ActionName() string { return "Query" }

// QueryTimeout fires when a Query's Deadline elapses with no matching
// QueryEntryResult. Idempotent: if the slot already resolved between
// the timer firing and this action reducing, it is a no-op.
type QueryTimeout struct {
	Key QueryKey
}

func (QueryTimeout) ActionName() string { return "QueryTimeout" }

// SendDirectMessage asks the network actor to deliver an
// application-level payload to ToAgent, optionally awaiting a reply.
type SendDirectMessage struct {
	MsgID       uuid.UUID
	ToAgent     hash.Address
	Payload     []byte
	ExpectReply bool
	Deadline    time.Time
}

func (SendDirectMessage) ActionName() string { return "SendDirectMessage" }

// SendDirectMessageTimeout fires when a SendDirectMessage awaiting a
// reply exceeds its Deadline with no matching result.
type SendDirectMessageTimeout struct {
	MsgID uuid.UUID
}

func (SendDirectMessageTimeout) ActionName() string { return "SendDirectMessageTimeout" }

// Publish fans an already-held entry's aspects out to the DHT: one
// HandleStoreEntryAspect envelope per aspect, addressed to ToAgent.
type Publish struct {
	EntryAddress hash.Address
	ToAgent      hash.Address
}

func (Publish) ActionName() string { return "Publish" }

// PeerConnected is dispatched when the transport learns of a new peer
// in the same DNA space (a Connected or PeerConnected wire message
// arrived). It triggers the gossip bootstrap: requesting the peer's
// authoring and holding entry lists.
type PeerConnected struct {
	Peer hash.Address
}

func (PeerConnected) ActionName() string { return "PeerConnected" }

// GetValidationPackage asks an entry's author for the validation
// package needed to validate one of its headers. This is the action
// State.RequestValidationPackage dispatches to satisfy
// validation.Requester.
type GetValidationPackage struct {
	HeaderAddress hash.Address
	Author        hash.Address
	Deadline      time.Time
}

func (GetValidationPackage) ActionName() string { return "GetValidationPackage" }

// GetValidationPackageTimeout fires when a GetValidationPackage's
// Deadline elapses with no matching GetValidationPackageResult. The
// reducer turns this into a ReceiveValidationPackage action carrying
// holoerr.ErrTimeout, dispatched back to the shared Dispatcher.
type GetValidationPackageTimeout struct {
	HeaderAddress hash.Address
}

func (GetValidationPackageTimeout) ActionName() string { return "GetValidationPackageTimeout" }

// InboundEnvelope is the single ingress action type: every Envelope
// arriving over a Transport is wrapped in one of these and dispatched,
// rather than defining a separate action type per wire Kind. The
// Reducer's inbound switch dispatches on Env.Kind the same way a wire
// handler would.
type InboundEnvelope struct {
	Env Envelope
}

func (InboundEnvelope) ActionName() string { return "InboundEnvelope" }
