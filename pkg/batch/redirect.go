package batch

import (
	"strings"

	"github.com/elikakv/client/pkg/cluster"
	"github.com/elikakv/client/pkg/respio"
)

// classify inspects a response packet for the three outcomes the executor
// treats specially: a redirect, a loading error, or a passthrough
// server-error. A zero classification means the packet is an ordinary result.
type classification struct {
	redirect cluster.RedirectKind
	addr     string
	loading  bool
	srvErr   error
}

func classify(pkt *respio.RespPacket) classification {
	if pkt == nil || pkt.Type != respio.RespError {
		return classification{}
	}
	msg := string(pkt.Data)
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return classification{srvErr: &ServerError{Message: msg}}
	}
	switch fields[0] {
	case "MOVED":
		if len(fields) >= 3 {
			return classification{redirect: cluster.RedirectMoved, addr: fields[2]}
		}
	case "ASK":
		if len(fields) >= 3 {
			return classification{redirect: cluster.RedirectAsk, addr: fields[2]}
		}
	case "LOADING":
		return classification{loading: true}
	}
	return classification{srvErr: &ServerError{Message: msg}}
}
