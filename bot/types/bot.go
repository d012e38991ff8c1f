package types

import (
	"context"
	"time"
)

// BotLike 扩展和钩子看到的宿主接口
type BotLike interface {
	RegisterExtension(extInfo *ExtInfo)
	ExtFind(s string) *ExtInfo
	GetExtList() []*ExtInfo

	SendReply(msg *MsgToReply)

	RegisterMessageInHook(name string, priority HookPriority, hook MessageInHook) (HookHandle, error)
	UnregisterMessageInHook(handle HookHandle) bool

	RegisterEventHook(name string, priority HookPriority, hook EventHook) (HookHandle, error)
	UnregisterEventHook(handle HookHandle) bool

	// WaitNextMessage 等待下一条满足 match 的消息，被截获的消息不再进入指令处理
	WaitNextMessage(ctx context.Context, timeout time.Duration, match func(msg *Message) bool) (*Message, error)
	// ExpectNextMessage 先挂上等待，再由调用方发出提问，避免回复早于等待到达
	ExpectNextMessage(match func(msg *Message) bool) (MessageWaiter, error)
}

type MessageWaiter interface {
	Wait(ctx context.Context, timeout time.Duration) (*Message, error)
	Close()
}
