package batch

import (
	"github.com/elikakv/client/pkg/cluster"
	"github.com/elikakv/client/pkg/respio"
)

var askingFrame = &respio.RespPacket{
	Type:  respio.RespArray,
	Array: []*respio.RespPacket{{Type: respio.RespString, Data: []byte("ASKING")}},
}

// buildPipeline assembles the wire frames for one attempt: every command in
// the bucket whose promise has not already succeeded,
// preceded by a one-shot ASKING probe when the source carries an ASK
// redirect. It returns the frames alongside the commands they correspond to
// (askPrefixed tells the caller whether frames[0] is the ASKING probe, with
// no corresponding command).
func buildPipeline(all []*Command, source cluster.NodeSource) (frames []*respio.RespPacket, pending []*Command, askPrefixed bool) {
	pending = make([]*Command, 0, len(all))
	for _, cmd := range all {
		if cmd.Promise.IsSuccess() {
			continue
		}
		pending = append(pending, cmd)
	}
	frames = make([]*respio.RespPacket, 0, len(pending)+1)
	if source.Redirect == cluster.RedirectAsk {
		frames = append(frames, askingFrame)
		askPrefixed = true
	}
	for _, cmd := range pending {
		frames = append(frames, cmd.Frame)
	}
	return frames, pending, askPrefixed
}
