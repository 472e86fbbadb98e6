package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elikakv/client/pkg/cluster"
)

func TestBuildPipeline_NoRedirectNoPrefix(t *testing.T) {
	cmds := []*Command{
		newCommand(1, 1, []byte("GET"), [][]byte{[]byte("a")}),
		newCommand(2, 1, []byte("GET"), [][]byte{[]byte("b")}),
	}
	frames, pending, askPrefixed := buildPipeline(cmds, cluster.NodeSource{Slot: 1})
	assert.False(t, askPrefixed)
	require.Len(t, frames, 2)
	require.Len(t, pending, 2)
}

func TestBuildPipeline_AskPrependsAskingFrame(t *testing.T) {
	cmds := []*Command{newCommand(1, 1, []byte("GET"), [][]byte{[]byte("a")})}
	frames, pending, askPrefixed := buildPipeline(cmds, cluster.NodeSource{Slot: 1, Addr: "x", Redirect: cluster.RedirectAsk})
	assert.True(t, askPrefixed)
	require.Len(t, frames, 2)
	assert.Same(t, askingFrame, frames[0])
	require.Len(t, pending, 1)
}

func TestBuildPipeline_SkipsAlreadySettledCommands(t *testing.T) {
	settled := newCommand(1, 1, []byte("GET"), [][]byte{[]byte("a")})
	settled.Promise.Complete(nil)
	pending := newCommand(2, 1, []byte("GET"), [][]byte{[]byte("b")})

	frames, pendingOut, _ := buildPipeline([]*Command{settled, pending}, cluster.NodeSource{Slot: 1})
	require.Len(t, frames, 1)
	require.Len(t, pendingOut, 1)
	assert.Equal(t, pending, pendingOut[0])
}
