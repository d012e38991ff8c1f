package adapters

import "github.com/sealdice/qqoperator/bot/types"

type SimpleUserInfo struct {
	UserId   string // 用户ID
	UserName string // 用户名
}

// AdapterCallback 适配器回调接口
type AdapterCallback interface {
	OnError(err error)
	OnMessageReceived(info *MessageReceivedInfo)
	OnEvent(evt *types.AdapterEvent)
}

// MessageReceivedInfo 收到的一条消息
type MessageReceivedInfo struct {
	Sender  *SimpleUserInfo
	Message *types.Message
}

// MessageSendRequest 发送消息请求
type MessageSendRequest struct {
	Segments []types.IMessageElement // 消息段
	TargetId string                  // 目标用户ID/群组ID，带不带 QQ: 前缀均可
}
