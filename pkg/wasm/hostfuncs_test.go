package wasm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/types"
)

type stubHost struct {
	commitAddr hash.Address
	commitErr  error
	gotEntry   *types.Entry
	gotLUD     *hash.Address

	getEntry *types.Entry
	getErr   error

	linkOp    LinkOp
	linkErr   error
	gotBase   hash.Address
	gotType   string
	gotTag    string
	gotTarget hash.Address

	linkTargets []hash.Address
	linkErr2    error

	queryEntry *types.Entry
	queryErr   error

	sendReply []byte
	sendErr   error

	debugMsgs []string

	propValue string
	propErr   error

	zomes map[string]*types.Zome

	hashOut hash.Address

	signature []byte
	signErr   error

	verifyOK  bool
	verifyErr error

	grantToken hash.Address
	grantErr   error

	claimAddr hash.Address
	claimErr  error

	signals []string

	slept int64
}

func (s *stubHost) Commit(entry *types.Entry, linkUpdateDelete *hash.Address) (hash.Address, error) {
	s.gotEntry = entry
	s.gotLUD = linkUpdateDelete
	return s.commitAddr, s.commitErr
}
func (s *stubHost) Get(addr hash.Address) (*types.Entry, error) { return s.getEntry, s.getErr }
func (s *stubHost) Link(op LinkOp, base hash.Address, linkType, tag string, target hash.Address) error {
	s.linkOp, s.gotBase, s.gotType, s.gotTag, s.gotTarget = op, base, linkType, tag, target
	return s.linkErr
}
func (s *stubHost) GetLinks(base hash.Address, linkType, tag string) ([]hash.Address, error) {
	return s.linkTargets, s.linkErr2
}
func (s *stubHost) Query(addr hash.Address) (*types.Entry, error) { return s.queryEntry, s.queryErr }
func (s *stubHost) Send(to hash.Address, payload []byte, awaitReply bool) ([]byte, error) {
	return s.sendReply, s.sendErr
}
func (s *stubHost) Debug(zome, msg string) { s.debugMsgs = append(s.debugMsgs, zome+": "+msg) }
func (s *stubHost) Property(name string) (string, error)    { return s.propValue, s.propErr }
func (s *stubHost) ResolveZome(name string) (*types.Zome, error) {
	z, ok := s.zomes[name]
	if !ok {
		return nil, holoerr.ErrZomeNotFound
	}
	return z, nil
}
func (s *stubHost) CryptoHash(data []byte) hash.Address { return s.hashOut }
func (s *stubHost) Sign(data []byte) ([]byte, error)    { return s.signature, s.signErr }
func (s *stubHost) Verify(agent hash.Address, data, signature []byte) (bool, error) {
	return s.verifyOK, s.verifyErr
}
func (s *stubHost) MakeCapRequest(token hash.Address, function string, parameters []byte) (types.CapabilityRequest, error) {
	return types.CapabilityRequest{}, nil
}
func (s *stubHost) GrantCapability(capType types.CapabilityType, assignees []hash.Address, functions []types.CapabilityFunction) (hash.Address, error) {
	return s.grantToken, s.grantErr
}
func (s *stubHost) ClaimCapability(grantor hash.Address, token hash.Address) (hash.Address, error) {
	return s.claimAddr, s.claimErr
}
func (s *stubHost) EmitSignal(name string, payload []byte) { s.signals = append(s.signals, name) }
func (s *stubHost) Sleep(millis int64)                     { s.slept = millis }

func TestHostCommitPassesEntryAndReturnsAddress(t *testing.T) {
	stub := &stubHost{commitAddr: hash.Address("addr1")}
	h := &hostCall{host: stub, zome: "notes"}
	req, err := json.Marshal(commitRequest{Entry: &wireEntry{Type: "note", AppPayload: []byte("hi")}})
	require.NoError(t, err)

	respData, failure := hostCommit(h)(req)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	require.NotNil(t, stub.gotEntry)
	assert.Equal(t, types.EntryType("note"), stub.gotEntry.Type)
	assert.Nil(t, stub.gotLUD)

	var resp commitResponse
	require.NoError(t, json.Unmarshal(respData, &resp))
	assert.Equal(t, hash.Address("addr1"), resp.Address)
}

func TestHostCommitPassesLinkUpdateDelete(t *testing.T) {
	stub := &stubHost{commitAddr: hash.Address("addr2")}
	h := &hostCall{host: stub}
	req, err := json.Marshal(commitRequest{Entry: &wireEntry{Type: "note"}, LinkUpdateDelete: hash.Address("old")})
	require.NoError(t, err)

	_, failure := hostCommit(h)(req)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	require.NotNil(t, stub.gotLUD)
	assert.Equal(t, hash.Address("old"), *stub.gotLUD)
}

func TestHostCommitReturnsWorkflowFailedOnError(t *testing.T) {
	stub := &stubHost{commitErr: errors.New("boom")}
	h := &hostCall{host: stub}
	req, _ := json.Marshal(commitRequest{Entry: &wireEntry{Type: "note"}})

	_, failure := hostCommit(h)(req)
	assert.Equal(t, holoerr.RibosomeWorkflowFailed, failure)
}

func TestHostGetReturnsEntryNotFound(t *testing.T) {
	stub := &stubHost{getErr: errors.New("missing")}
	h := &hostCall{host: stub}
	req, _ := json.Marshal(getRequest{Address: hash.Address("nope")})

	_, failure := hostGet(h)(req)
	assert.Equal(t, holoerr.RibosomeEntryNotFound, failure)
}

func TestHostLinkAddAndRemove(t *testing.T) {
	stub := &stubHost{}
	h := &hostCall{host: stub}

	addReq, _ := json.Marshal(linkRequest{Op: "add", Base: "b", LinkType: "t", Tag: "tag", Target: "x"})
	_, failure := hostLink(h)(addReq)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	assert.Equal(t, LinkAdd, stub.linkOp)

	removeReq, _ := json.Marshal(linkRequest{Op: "remove", Base: "b", LinkType: "t", Tag: "tag", Target: "x"})
	_, failure = hostLink(h)(removeReq)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	assert.Equal(t, LinkRemove, stub.linkOp)
}

func TestHostGetLinksReturnsTargets(t *testing.T) {
	stub := &stubHost{linkTargets: []hash.Address{"a", "b"}}
	h := &hostCall{host: stub}
	req, _ := json.Marshal(getLinksRequest{Base: "base", LinkType: "t", Tag: "tag"})

	respData, failure := hostGetLinks(h)(req)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	var resp getLinksResponse
	require.NoError(t, json.Unmarshal(respData, &resp))
	assert.Equal(t, []hash.Address{"a", "b"}, resp.Targets)
}

func TestHostDebugForwardsZomeAndMessage(t *testing.T) {
	stub := &stubHost{}
	h := &hostCall{host: stub, zome: "notes"}
	req, _ := json.Marshal(debugRequest{Msg: "hello"})

	_, failure := hostDebug(h)(req)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	assert.Equal(t, []string{"notes: hello"}, stub.debugMsgs)
}

func TestHostCallInnerRejectsAlreadyActiveFrame(t *testing.T) {
	stack := newCallStack("notes", "create_note")
	h := &hostCall{host: &stubHost{}, stack: stack}
	req, _ := json.Marshal(callRequest{Zome: "notes", Function: "create_note"})

	_, failure := hostCallInner(&Engine{}, h)(req)
	assert.Equal(t, holoerr.RibosomeRecursiveCallForbidden, failure)
}

func TestHostCapabilityGrantAndClaim(t *testing.T) {
	stub := &stubHost{grantToken: "grant-addr", claimAddr: "claim-addr"}
	h := &hostCall{host: stub}

	grantReq, _ := json.Marshal(capabilityGrantRequest{Type: string(types.CapabilityAssigned), Assignees: []hash.Address{"agent1"}})
	respData, failure := hostCapabilityGrant(h)(grantReq)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	var grantResp capabilityGrantResponse
	require.NoError(t, json.Unmarshal(respData, &grantResp))
	assert.Equal(t, hash.Address("grant-addr"), grantResp.Token)

	claimReq, _ := json.Marshal(capabilityClaimRequest{Grantor: "agent2", Token: "grant-addr"})
	respData, failure = hostCapabilityClaim(h)(claimReq)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	var claimResp capabilityClaimResponse
	require.NoError(t, json.Unmarshal(respData, &claimResp))
	assert.Equal(t, hash.Address("claim-addr"), claimResp.Address)
}

func TestHostEmitSignalAndSleep(t *testing.T) {
	stub := &stubHost{}
	h := &hostCall{host: stub}

	sigReq, _ := json.Marshal(emitSignalRequest{Name: "note_created"})
	_, failure := hostEmitSignal(h)(sigReq)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	assert.Equal(t, []string{"note_created"}, stub.signals)

	sleepReq, _ := json.Marshal(sleepRequest{Millis: 50})
	_, failure = hostSleep(h)(sleepReq)
	assert.Equal(t, holoerr.RibosomeSuccess, failure)
	assert.Equal(t, int64(50), stub.slept)
}
