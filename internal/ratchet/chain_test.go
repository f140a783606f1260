package ratchet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainAdvancesMonotonically(t *testing.T) {
	var seed [32]byte
	copy(seed[:], []byte("initial-chain-key-for-testing!!"))

	chain := NewChain(seed)
	require.EqualValues(t, 0, chain.Counter())

	first, err := chain.Next()
	require.NoError(t, err)
	require.EqualValues(t, 1, chain.Counter())

	second, err := chain.Next()
	require.NoError(t, err)
	require.EqualValues(t, 2, chain.Counter())

	require.NotEqual(t, first.AESKey, second.AESKey)
	require.NotEqual(t, first.MACKey, second.MACKey)
	require.NotEqual(t, first.IV, second.IV)
}

func TestChainCounterWrap(t *testing.T) {
	var seed [32]byte
	chain := &Chain{key: seed, counter: ^uint32(0)}

	_, err := chain.Next()
	require.ErrorIs(t, err, ErrCounterWrapped)
}
