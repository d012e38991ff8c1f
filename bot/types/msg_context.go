package types

import "context"

type MsgContext struct {
	CommandID int64
	AdapterID string
	IsPrivate bool

	Bot BotLike

	ctx context.Context
}

func NewMsgContext(ctx context.Context, b BotLike, adapterID string, msg *Message) *MsgContext {
	return &MsgContext{
		AdapterID: adapterID,
		IsPrivate: msg != nil && msg.MessageType == MessageTypePrivate,
		Bot:       b,
		ctx:       ctx,
	}
}

// Context 指令处理所属的 context，未设置时为 Background
func (c *MsgContext) Context() context.Context {
	if c == nil || c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}
