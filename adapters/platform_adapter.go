package adapters

import (
	"context"
	"encoding/json"

	"github.com/sealdice/qqoperator/bot/types"
)

// PlatformAdapter 平台适配器接口，只负责协议，不依赖业务上下文
type PlatformAdapter interface {
	IsAlive() bool
	SelfID() string

	MsgSendToGroup(ctx context.Context, request *MessageSendRequest) (bool, error)
	MsgSendToPerson(ctx context.Context, request *MessageSendRequest) (bool, error)
	// SendReply 宿主发送回调，按消息类型转给上面两个方法
	SendReply(msg *types.MsgToReply)

	// CallAction 调用任意接口，返回完整响应帧；业务失败不算 error
	CallAction(ctx context.Context, action string, params map[string]any) (json.RawMessage, error)

	SetCallback(callback AdapterCallback)
}

var _ PlatformAdapter = (*PlatformAdapterOB11)(nil)
