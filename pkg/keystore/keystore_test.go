package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRandomSeedRejectsDuplicate(t *testing.T) {
	ks := New()
	require.NoError(t, ks.AddRandomSeed("root"))
	assert.Equal(t, []string{"root"}, ks.List())

	err := ks.AddRandomSeed("root")
	assert.Error(t, err)
}

func TestAddSeedFromSeedRequiresExistingSource(t *testing.T) {
	ks := New()

	err := ks.AddSeedFromSeed("root", "child", "SOMECTXT", 1)
	assert.Error(t, err)

	require.NoError(t, ks.AddRandomSeed("root"))
	require.NoError(t, ks.AddSeedFromSeed("root", "child", "SOMECTXT", 1))

	assert.ElementsMatch(t, []string{"root", "child"}, ks.List())

	err = ks.AddSeedFromSeed("root", "child", "SOMECTXT", 1)
	assert.Error(t, err)
}

func TestAddKeyFromSeedAndSignRoundTrips(t *testing.T) {
	ks := New()
	require.NoError(t, ks.AddRandomSeed("root"))

	addr, err := ks.AddKeyFromSeed("root", "agent", "agent_id", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, addr)

	data := []byte("the data to sign")
	sig, err := ks.Sign("agent", data)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	ok, err := Verify(addr, data, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(addr, []byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddKeyFromSeedDistinctIndicesYieldDistinctKeys(t *testing.T) {
	ks := New()
	require.NoError(t, ks.AddRandomSeed("root"))

	addr1, err := ks.AddKeyFromSeed("root", "agent-1", "agent_id", 1)
	require.NoError(t, err)

	addr2, err := ks.AddKeyFromSeed("root", "agent-2", "agent_id", 2)
	require.NoError(t, err)

	assert.NotEqual(t, addr1, addr2)
}

func TestSignOneTimeProducesVerifiableSignature(t *testing.T) {
	data := []byte("ephemeral payload")
	addr, sig, err := SignOneTime(data)
	require.NoError(t, err)

	ok, err := Verify(addr, data, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}
