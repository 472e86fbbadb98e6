package proxy

import (
	"bytes"
	"context"
	"fmt"
	"net"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/elikakv/client/pkg/batch"
	"github.com/elikakv/client/pkg/be_cluster"
	"github.com/elikakv/client/pkg/cluster"
	"github.com/elikakv/client/pkg/common"
	"github.com/elikakv/client/pkg/respio"
)

// readOnlyCommands is the minimal set of commands the gateway will route to
// a replica; everything else goes to the slot's master. This is deliberately
// small - it only needs to cover what a client actually exercises through
// this gateway, not the full Redis command table.
var readOnlyCommands = map[string]bool{
	"GET": true, "MGET": true, "EXISTS": true, "TTL": true, "PTTL": true,
	"STRLEN": true, "GETRANGE": true, "HGET": true, "HMGET": true,
	"HGETALL": true, "LRANGE": true, "LLEN": true, "SMEMBERS": true,
	"SCARD": true, "ZRANGE": true, "ZSCORE": true, "ZCARD": true,
}

func isReadOnlyCommand(cmd []byte) bool {
	return readOnlyCommands[string(bytes.ToUpper(cmd))]
}

// ClusterSessionManager is the cluster-aware counterpart to
// be_cluster.SessionManager: instead of pinning a client to one backend
// connection and forwarding frames 1:1, every command becomes a one-command
// batch routed by key slot through BatchExecutor, and a MULTI...EXEC block
// is accumulated into a single multi-command batch dispatched on EXEC. That
// batch is not atomic: each slot's commands go to their own node
// independently, and no MULTI/EXEC is sent to the nodes. It reuses be_cluster.Session for the client-facing transport, since
// framing and the reply queue aren't cluster-routing concerns.
type ClusterSessionManager struct {
	sessions *xsync.MapOf[string, *be_cluster.Session]
	txBatch  *xsync.MapOf[string, *batch.Batch]
	router   *cluster.SlotMapRouter
	executor *batch.BatchExecutor
}

func NewClusterSessionManager(router *cluster.SlotMapRouter, executor *batch.BatchExecutor) *ClusterSessionManager {
	return &ClusterSessionManager{
		sessions: xsync.NewMapOf[string, *be_cluster.Session](),
		txBatch:  xsync.NewMapOf[string, *batch.Batch](),
		router:   router,
		executor: executor,
	}
}

func (m *ClusterSessionManager) OpenSession(id string, client net.Conn) {
	session := be_cluster.NewSession(id, client, be_cluster.DefaultSessionOutQSize)
	go session.ReplyLoop()
	m.sessions.Store(id, session)
}

func (m *ClusterSessionManager) LoadSession(id string) *be_cluster.Session {
	session, _ := m.sessions.Load(id)
	return session
}

func (m *ClusterSessionManager) CloseSession(id string) {
	if session, ok := m.sessions.LoadAndDelete(id); ok {
		session.Close()
	}
	m.txBatch.Delete(id)
}

func (m *ClusterSessionManager) Clear() {
	m.sessions.Clear()
	m.txBatch.Clear()
}

// Forward turns one client frame into cluster traffic. Outside a
// MULTI...EXEC block it executes immediately as a one-command batch;
// between MULTI and EXEC/DISCARD it only accumulates into that
// connection's pending batch, replying +QUEUED the way a real Redis server
// does.
func (m *ClusterSessionManager) Forward(id string, packet *respio.RespPacket, _ *common.AuthInfo) error {
	session := m.LoadSession(id)
	if session == nil {
		return fmt.Errorf("elika proxy: no session for connection %s", id)
	}
	cmd, txState, isTx := packet.IsTxCmd()
	pending, inTx := m.txBatch.Load(id)

	switch {
	case isTx && txState == respio.TxCmdStateBegin && bytes.EqualFold(cmd, respio.MultiCmd):
		if inTx {
			return session.WriteAndFlush(errorPacket("MULTI calls can not be nested"))
		}
		m.txBatch.Store(id, batch.NewBatch(m.executor))
		return session.WriteAndFlush(respio.OkStatus)

	case inTx && isTx && txState == respio.TxCmdStateEnd && bytes.EqualFold(cmd, respio.DiscardCmd):
		m.txBatch.Delete(id)
		return session.WriteAndFlush(respio.OkStatus)

	case inTx && isTx && txState == respio.TxCmdStateEnd && bytes.EqualFold(cmd, respio.ExecCmd):
		m.txBatch.Delete(id)
		return session.WriteAndFlush(m.runExec(context.Background(), pending))

	case inTx:
		args := packetArgs(packet)
		if _, err := pending.Enqueue(keySlot(firstKeyArg(cmd, args)), isReadOnlyCommand(cmd), cmd, args); err != nil {
			return session.WriteAndFlush(errorPacket(err.Error()))
		}
		return session.WriteAndFlush(&respio.RespPacket{Type: respio.RespStatus, Data: []byte("QUEUED")})

	default:
		return session.WriteAndFlush(m.runSingle(context.Background(), packet))
	}
}

func (m *ClusterSessionManager) runSingle(ctx context.Context, packet *respio.RespPacket) *respio.RespPacket {
	cmd := packet.GetCommand()
	args := packetArgs(packet)
	b := batch.NewBatch(m.executor)
	if _, err := b.Enqueue(keySlot(firstKeyArg(cmd, args)), isReadOnlyCommand(cmd), cmd, args); err != nil {
		return errorPacket(err.Error())
	}
	results, err := b.Execute(ctx)
	if err != nil {
		return errorPacket(err.Error())
	}
	reply, err := results[0].Promise.Result()
	if err != nil {
		return errorPacket(err.Error())
	}
	return reply
}

func (m *ClusterSessionManager) runExec(ctx context.Context, pending *batch.Batch) *respio.RespPacket {
	results, err := pending.Execute(ctx)
	if err != nil {
		return errorPacket(err.Error())
	}
	elems := make([]*respio.RespPacket, len(results))
	for i, cmd := range results {
		reply, rerr := cmd.Promise.Result()
		if rerr != nil {
			reply = errorPacket(rerr.Error())
		}
		elems[i] = reply
	}
	return &respio.RespPacket{Type: respio.RespArray, Array: elems}
}

func packetArgs(packet *respio.RespPacket) [][]byte {
	if packet.Type != respio.RespArray || len(packet.Array) < 2 {
		return nil
	}
	args := make([][]byte, 0, len(packet.Array)-1)
	for _, elem := range packet.Array[1:] {
		args = append(args, elem.Data)
	}
	return args
}

// firstKeyArg treats the command's first argument as its routing key, the
// convention for every single-key command this gateway forwards; commands
// with no arguments (PING, EXEC bookkeeping) route on the command name
// itself so they still land on a deterministic, if arbitrary, slot.
func firstKeyArg(cmd []byte, args [][]byte) []byte {
	if len(args) > 0 {
		return args[0]
	}
	return cmd
}

func errorPacket(msg string) *respio.RespPacket {
	return &respio.RespPacket{Type: respio.RespError, Data: []byte(msg)}
}
