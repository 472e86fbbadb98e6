package cluster

import (
	"net"

	"github.com/elikakv/client/pkg/respio"
)

// fakeNode is a minimal RESP server used across this package's tests: it
// accepts connections and replies +PONG to PING, +OK to everything else.
type fakeNode struct {
	ln net.Listener
}

func newFakeNode() (*fakeNode, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	n := &fakeNode{ln: ln}
	go n.serve()
	return n, nil
}

func (n *fakeNode) addr() string { return n.ln.Addr().String() }

func (n *fakeNode) close() { _ = n.ln.Close() }

func (n *fakeNode) serve() {
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			return
		}
		go n.handle(conn)
	}
}

func (n *fakeNode) handle(conn net.Conn) {
	defer conn.Close()
	r := respio.NewRespReader(conn)
	w := respio.NewRespWriter(conn)
	for {
		pkt, err := r.Read()
		if err != nil {
			return
		}
		reply := &respio.RespPacket{Type: respio.RespStatus, Data: []byte("OK")}
		if pkt.Type == respio.RespArray && len(pkt.Array) > 0 && string(pkt.Array[0].Data) == "PING" {
			reply = &respio.RespPacket{Type: respio.RespStatus, Data: []byte("PONG")}
		}
		if err := w.Write(reply); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// listenOn binds the exact address a prior freePort/fakeNode handed out -
// used by tests that quarantine an entry against one address and then bring
// a real listener up on that same address to exercise the reconnect probe.
func listenOn(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// freePort returns a TCP address nothing is listening on, by opening and
// immediately closing a listener - the port stays free long enough for a
// test to dial it and observe a connection-refused error.
func freePort() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr, nil
}
