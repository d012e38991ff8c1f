package types

type HookHandle string

type HookPriority int

const (
	HookPriorityLow     HookPriority = -10
	HookPriorityNormal  HookPriority = 0
	HookPriorityHigh    HookPriority = 10
	HookPrioritySession HookPriority = 100 // 会话等待，先于一切常规钩子
)

type HookResult int

const (
	HookResultContinue HookResult = iota
	HookResultStop
	HookResultAbort
)

type AdapterEvent struct {
	Platform   string         // 源平台标识，如 QQ
	PostType   string         // 原始 post_type，例如 notice/request/meta_event
	Type       string         // 事件类型，例如 group_increase、lifecycle
	SubType    string         // 事件子类型，例如 connect
	Time       int64          // 事件发生时间戳
	SelfID     string         // 机器人账号
	GroupID    string         // 相关群 ID（QQ-Group:xxx 格式）
	UserID     string         // 相关用户 ID（QQ:xxx 格式）
	OperatorID string         // 操作者 ID
	Raw        map[string]any // 原始事件数据
}

type MessageInHook func(b BotLike, adapterID string, msg *Message, ctx *MsgContext) HookResult

type EventHook func(b BotLike, adapterID string, evt *AdapterEvent) HookResult
