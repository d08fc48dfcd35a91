package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/holo/pkg/holoerr"
)

func TestPackUnpackAllocationRoundTrip(t *testing.T) {
	cases := []allocation{
		{Offset: 0, Length: 0},
		{Offset: 1, Length: 1},
		{Offset: 4096, Length: 128},
		{Offset: 0xffffffff, Length: 0xffffffff},
	}
	for _, a := range cases {
		got := unpackAllocation(packAllocation(a))
		assert.Equal(t, a, got)
	}
}

func TestDecodeReturnSuccessNoBody(t *testing.T) {
	body, ok, err := decodeReturn(0)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, allocation{}, body)
}

func TestDecodeReturnFailureCode(t *testing.T) {
	v := packAllocation(allocation{Offset: uint32(holoerr.RibosomeEntryNotFound), Length: 0})
	body, ok, err := decodeReturn(v)
	assert.False(t, ok)
	assert.Equal(t, allocation{}, body)
	assert.Error(t, err)
}

func TestDecodeReturnRealAllocation(t *testing.T) {
	want := allocation{Offset: 64, Length: 16}
	body, ok, err := decodeReturn(packAllocation(want))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, body)
}
