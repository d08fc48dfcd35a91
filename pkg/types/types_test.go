package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/holo/pkg/hash"
)

func TestEntryAddressStableAcrossEqualValues(t *testing.T) {
	e1 := &Entry{Type: EntryTypeApp, AppEntryType: "note", AppPayload: []byte(`"hello"`)}
	e2 := &Entry{Type: EntryTypeApp, AppEntryType: "note", AppPayload: []byte(`"hello"`)}
	assert.Equal(t, e1.Address(), e2.Address())

	e3 := &Entry{Type: EntryTypeApp, AppEntryType: "note", AppPayload: []byte(`"goodbye"`)}
	assert.NotEqual(t, e1.Address(), e3.Address())
}

func TestEntryCanPublish(t *testing.T) {
	pub := &Entry{Type: EntryTypeApp, AppEntryType: "note"}
	assert.True(t, pub.CanPublish())

	priv := &Entry{Type: EntryTypeApp, AppEntryType: "private_note"}
	assert.False(t, priv.CanPublish())

	sys := &Entry{Type: EntryTypeAgentID}
	assert.True(t, sys.CanPublish())
}

func TestHeaderAddressChangesWithLink(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	entryAddr := hash.Of([]byte("entry"))

	h1 := &ChainHeader{EntryType: EntryTypeApp, EntryAddress: entryAddr, Timestamp: ts}
	h2 := &ChainHeader{EntryType: EntryTypeApp, EntryAddress: entryAddr, Timestamp: ts}
	assert.Equal(t, h1.Address(), h2.Address())

	prior := hash.Of([]byte("prior-header"))
	h3 := &ChainHeader{EntryType: EntryTypeApp, EntryAddress: entryAddr, Timestamp: ts, Link: &prior}
	assert.NotEqual(t, h1.Address(), h3.Address())
}

func TestCapabilityTokenAdmits(t *testing.T) {
	alice := hash.Address("alice")
	bob := hash.Address("bob")

	public := &CapabilityToken{Type: CapabilityPublic}
	assert.True(t, public.Admits(alice))
	assert.True(t, public.Admits(bob))

	assigned := &CapabilityToken{Type: CapabilityAssigned, Assignees: []hash.Address{alice}}
	assert.True(t, assigned.Admits(alice))
	assert.False(t, assigned.Admits(bob))

	transferable := &CapabilityToken{Type: CapabilityTransferable}
	assert.True(t, transferable.Admits(bob))
}

func TestCapabilityTokenGrants(t *testing.T) {
	tok := &CapabilityToken{
		Functions: []CapabilityFunction{{Zome: "notes", Function: "create"}},
	}
	assert.True(t, tok.Grants("notes", "create"))
	assert.False(t, tok.Grants("notes", "delete"))
	assert.False(t, tok.Grants("other", "create"))
}

func TestDNAAddressExcludesMeta(t *testing.T) {
	d1 := &DNA{Name: "app", Version: "1", Meta: map[string]interface{}{"layout": "a"}}
	d2 := &DNA{Name: "app", Version: "1", Meta: map[string]interface{}{"layout": "b"}}
	assert.Equal(t, d1.Address(), d2.Address())

	d3 := &DNA{Name: "app", Version: "2"}
	assert.NotEqual(t, d1.Address(), d3.Address())
}

func TestZomeByNameAndFnDeclByName(t *testing.T) {
	d := &DNA{
		Zomes: []Zome{
			{
				Name: "notes",
				FnDeclarations: []FnDeclaration{
					{Name: "create", Public: true},
				},
			},
		},
	}
	z, ok := d.ZomeByName("notes")
	assert.True(t, ok)

	fn, ok := z.FnDeclByName("create")
	assert.True(t, ok)
	assert.True(t, fn.Public)

	_, ok = z.FnDeclByName("missing")
	assert.False(t, ok)

	_, ok = d.ZomeByName("missing")
	assert.False(t, ok)
}
