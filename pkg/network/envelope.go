package network

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/types"
)

// Kind tags an Envelope's payload, forming the closed wire-message
// variant set of spec.md §6.
type Kind string

const (
	KindTrackDna                    Kind = "TrackDna"
	KindConnect                     Kind = "Connect"
	KindConnected                   Kind = "Connected"
	KindPeerConnected               Kind = "PeerConnected"
	KindFailureResult               Kind = "FailureResult"
	KindSendMessage                 Kind = "SendMessage"
	KindHandleSendMessage           Kind = "HandleSendMessage"
	KindHandleSendMessageResult     Kind = "HandleSendMessageResult"
	KindSendMessageResult           Kind = "SendMessageResult"
	KindPublishEntry                Kind = "PublishEntry"
	KindHandleStoreEntryAspect      Kind = "HandleStoreEntryAspect"
	KindHandleFetchEntry            Kind = "HandleFetchEntry"
	KindFetchEntryResult            Kind = "FetchEntryResult"
	KindQueryEntry                  Kind = "QueryEntry"
	KindHandleQueryEntry            Kind = "HandleQueryEntry"
	KindHandleQueryEntryResult      Kind = "HandleQueryEntryResult"
	KindQueryEntryResult            Kind = "QueryEntryResult"
	KindHandleGetAuthoringEntryList Kind = "HandleGetAuthoringEntryList"
	KindHandleGetHoldingEntryList   Kind = "HandleGetHoldingEntryList"
	KindGetAuthoringEntryListResult Kind = "GetAuthoringEntryListResult"
	KindGetHoldingEntryListResult   Kind = "GetHoldingEntryListResult"
	KindGetValidationPackage        Kind = "GetValidationPackage"
	KindGetValidationPackageResult  Kind = "GetValidationPackageResult"
)

// Envelope is the single wire type carried over a Transport: every
// message kind of spec.md §6 rides inside it, tagged by Kind, with
// Payload holding the kind-specific JSON body. request_id,
// space_address, and the directed-message agent ids are promoted to
// top-level fields since every non-trivial handler needs them before
// it can even look at Payload.
type Envelope struct {
	Kind        Kind            `json:"kind"`
	RequestID   uuid.UUID       `json:"request_id"`
	SpaceAddr   hash.Address    `json:"space_address"`
	FromAgentID hash.Address    `json:"from_agent_id,omitempty"`
	ToAgentID   hash.Address    `json:"to_agent_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// QueryKey identifies one outstanding QueryEntry/HandleQueryEntryResult
// round trip.
type QueryKey struct {
	RequestID uuid.UUID
	EntryAddr hash.Address
}

// queryEntryPayload is QueryEntry/HandleQueryEntry's wire body.
type queryEntryPayload struct {
	EntryAddress hash.Address `json:"entry_address"`
	QueryBytes   []byte       `json:"query_bytes,omitempty"`
}

// queryEntryResultPayload is QueryEntryResult/HandleQueryEntryResult's
// wire body.
type queryEntryResultPayload struct {
	Aspects []types.EntryAspect `json:"aspects,omitempty"`
	Err     string              `json:"err,omitempty"`
}

// sendMessagePayload is SendMessage/HandleSendMessage's wire body.
type sendMessagePayload struct {
	ExpectReply bool   `json:"expect_reply"`
	Payload     []byte `json:"payload"`
}

// sendMessageResultPayload is SendMessageResult/HandleSendMessageResult's
// wire body.
type sendMessageResultPayload struct {
	Payload []byte `json:"payload,omitempty"`
	Err     string `json:"err,omitempty"`
}

// storeEntryAspectPayload is HandleStoreEntryAspect's wire body: one
// aspect of a publish fan-out or a gossip fetch response.
type storeEntryAspectPayload struct {
	Aspect types.EntryAspect `json:"aspect"`
}

// entryListPayload answers HandleGetAuthoringEntryList and
// HandleGetHoldingEntryList: every address the responder authored or
// holds respectively.
type entryListPayload struct {
	Addresses []hash.Address `json:"addresses"`
}

// fetchEntryPayload is HandleFetchEntry/FetchEntryResult's wire body.
type fetchEntryPayload struct {
	EntryAddress hash.Address       `json:"entry_address"`
	Aspect       *types.EntryAspect `json:"aspect,omitempty"`
	Err          string             `json:"err,omitempty"`
}

// validationPackagePayload is GetValidationPackage/
// GetValidationPackageResult's wire body.
type validationPackagePayload struct {
	HeaderAddress hash.Address             `json:"header_address"`
	Package       *types.ValidationPackage `json:"package,omitempty"`
	Err           string                   `json:"err,omitempty"`
}
