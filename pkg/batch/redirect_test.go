package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elikakv/client/pkg/cluster"
	"github.com/elikakv/client/pkg/respio"
)

func TestClassify_Moved(t *testing.T) {
	pkt := &respio.RespPacket{Type: respio.RespError, Data: []byte("MOVED 3999 127.0.0.1:7001")}
	cls := classify(pkt)
	assert.Equal(t, cluster.RedirectMoved, cls.redirect)
	assert.Equal(t, "127.0.0.1:7001", cls.addr)
}

func TestClassify_Ask(t *testing.T) {
	pkt := &respio.RespPacket{Type: respio.RespError, Data: []byte("ASK 3999 127.0.0.1:7002")}
	cls := classify(pkt)
	assert.Equal(t, cluster.RedirectAsk, cls.redirect)
	assert.Equal(t, "127.0.0.1:7002", cls.addr)
}

func TestClassify_Loading(t *testing.T) {
	pkt := &respio.RespPacket{Type: respio.RespError, Data: []byte("LOADING Redis is loading the dataset in memory")}
	cls := classify(pkt)
	assert.True(t, cls.loading)
}

func TestClassify_OrdinaryServerError(t *testing.T) {
	pkt := &respio.RespPacket{Type: respio.RespError, Data: []byte("WRONGTYPE Operation against a key holding the wrong kind of value")}
	cls := classify(pkt)
	assert.Equal(t, cluster.RedirectNone, cls.redirect)
	assert.False(t, cls.loading)
	assert.Error(t, cls.srvErr)
}

func TestClassify_NonErrorPacketIsOrdinary(t *testing.T) {
	pkt := &respio.RespPacket{Type: respio.RespStatus, Data: []byte("OK")}
	cls := classify(pkt)
	assert.Equal(t, cluster.RedirectNone, cls.redirect)
	assert.False(t, cls.loading)
	assert.NoError(t, cls.srvErr)
}
