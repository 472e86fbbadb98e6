package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand_BuildsRespArrayFrame(t *testing.T) {
	cmd := newCommand(1, 5, []byte("SET"), [][]byte{[]byte("k"), []byte("v")})
	require.Len(t, cmd.Frame.Array, 3)
	assert.Equal(t, []byte("SET"), cmd.Frame.Array[0].Data)
	assert.Equal(t, []byte("k"), cmd.Frame.Array[1].Data)
	assert.Equal(t, []byte("v"), cmd.Frame.Array[2].Data)
	assert.Equal(t, uint64(1), cmd.Seq)
	assert.Equal(t, 5, cmd.Slot)
}

func TestSlotBucket_ReadOnlyLatchesFalseOnFirstWrite(t *testing.T) {
	b := newSlotBucket(7)
	assert.True(t, b.ReadOnly())

	b.append(newCommand(1, 7, []byte("GET"), nil), true)
	assert.True(t, b.ReadOnly())

	b.append(newCommand(2, 7, []byte("SET"), [][]byte{[]byte("k"), []byte("v")}), false)
	assert.False(t, b.ReadOnly())

	b.append(newCommand(3, 7, []byte("GET"), nil), true)
	assert.False(t, b.ReadOnly(), "a read-only append after a write must not relatch true")
}

func TestSlotBucket_SnapshotPreservesAppendOrder(t *testing.T) {
	b := newSlotBucket(3)
	for i := uint64(1); i <= 5; i++ {
		b.append(newCommand(i, 3, []byte("GET"), nil), true)
	}
	snap := b.Snapshot()
	require.Len(t, snap, 5)
	for i, cmd := range snap {
		assert.Equal(t, uint64(i+1), cmd.Seq)
	}
}
