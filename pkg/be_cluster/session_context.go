package be_cluster

import (
	"github.com/elikakv/client/pkg/common"
	"github.com/elikakv/client/pkg/respio"
)

type RequestContext struct {
	Request  *respio.RespPacket
	Session  *Session
	AuthInfo *common.AuthInfo
}

type ResponseContext struct {
	Response *respio.RespPacket
	Callback func(*Session)
}

func NewErrResponseContext(err error) *ResponseContext {
	return &ResponseContext{
		Response: &respio.RespPacket{
			Type: respio.RespError,
			Data: []byte(err.Error()),
		},
	}
}
