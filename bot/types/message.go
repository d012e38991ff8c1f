package types

const (
	MessageTypeGroup   = "group"
	MessageTypePrivate = "private"
)

type SenderBase struct {
	Nickname  string `json:"nickname"`
	UserID    string `json:"userId"`
	GroupRole string `json:"-"` // 群内角色 admin管理员 owner群主
}

// Message 收到的一条消息
type Message struct {
	Time        int64           `json:"time"`        // 发送时间
	MessageType string          `json:"messageType"` // group private
	GroupID     string          `json:"groupId"`     // 群号，如果是群聊消息
	Sender      SenderBase      `json:"sender"`      // 发送者
	Message     string          `json:"message"`     // 纯文本内容
	RawID       any             `json:"rawId"`       // 原始信息ID
	Platform    string          `json:"platform"`    // 当前平台
	SelfID      string          `json:"selfId"`      // 收到消息的机器人账号，OneBot 的 self_id
	Segments    MessageSegments `json:"-" yaml:"-"`
}

func (m *Message) IsGroup() bool {
	return m.MessageType == MessageTypeGroup
}
