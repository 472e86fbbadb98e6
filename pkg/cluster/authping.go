package cluster

import (
	"errors"
	"fmt"
	"time"

	"github.com/elikakv/client/pkg/respio"
)

var pingPacket = &respio.RespPacket{
	Type:  respio.RespArray,
	Array: []*respio.RespPacket{{Type: respio.RespString, Data: []byte("PING")}},
}

var errProbeTimeout = errors.New("elika cluster: probe command timed out")

// authenticate runs a single AUTH round-trip over a freshly dialed
// connection, used both for ordinary acquisition and for the reconnect
// probe's authenticating state.
func authenticate(conn *Connection, username, password []byte) error {
	res, err := roundTrip(conn, respio.NewAuthPacket(nilIfEmpty(username), password), 3*time.Second)
	if err != nil {
		return err
	}
	if res.Type == respio.RespError {
		return errors.New(string(res.Data))
	}
	return nil
}

// ping runs the reconnect probe's pinging state. A reply is only accepted as
// a healthy PONG if its payload matches literally - any other non-error
// reply (a misbehaving probe target replying +OK, say) is treated as a
// failed probe, not a pass.
func ping(conn *Connection) error {
	res, err := roundTrip(conn, pingPacket, 3*time.Second)
	if err != nil {
		return err
	}
	if res.Type == respio.RespError {
		return errors.New(string(res.Data))
	}
	if string(res.Data) != "PONG" {
		return fmt.Errorf("elika cluster: probe expected PONG, got %q", res.Data)
	}
	return nil
}

func roundTrip(conn *Connection, pkt *respio.RespPacket, timeout time.Duration) (*respio.RespPacket, error) {
	chans, err := conn.Send([]*respio.RespPacket{pkt}, timeout)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-chans[0]:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Packet, nil
	case <-time.After(timeout):
		return nil, errProbeTimeout
	}
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
