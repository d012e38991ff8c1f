package bot

import (
	"github.com/sealdice/qqoperator/bot/types"
)

func ReplyToSender(ctx *types.MsgContext, msg *types.Message, text string) {
	if msg.IsGroup() {
		ReplyGroup(ctx, msg, text)
	} else {
		ReplyPerson(ctx, msg, text)
	}
}

func ReplyGroup(ctx *types.MsgContext, msg *types.Message, text string) {
	replyRaw(ctx, msg, text, types.MessageTypeGroup)
}

func ReplyPerson(ctx *types.MsgContext, msg *types.Message, text string) {
	replyRaw(ctx, msg, text, types.MessageTypePrivate)
}

func replyRaw(ctx *types.MsgContext, msg *types.Message, text string, messageType string) {
	if ctx == nil || ctx.Bot == nil {
		return
	}

	var sendToGroupId string
	if messageType == types.MessageTypeGroup {
		sendToGroupId = msg.GroupID
	}

	ctx.Bot.SendReply(&types.MsgToReply{
		AdapterId: ctx.AdapterID,
		CommandId: ctx.CommandID,
		SendTo: types.MsgSendToInfo{
			Platform: msg.Platform,
			GroupId:  sendToGroupId,
			UserId:   msg.Sender.UserID,
			Nickname: msg.Sender.Nickname,
		},
		Time:        msg.Time,
		MessageType: messageType,
		Segments:    types.MessageSegments{&types.TextElement{Content: text}},
	})
}
