package bot

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sealdice/qqoperator/bot/types"
	"github.com/sealdice/qqoperator/utils"
)

// Bot 宿主调度器：接收适配器转来的消息，跑钩子，分发指令，把回复交给发送回调
type Bot struct {
	CallbackForSendMsg utils.SyncMap[string, func(msg *types.MsgToReply)]

	inboundHooks hookRegistry[types.MessageInHook]
	eventHooks   hookRegistry[types.EventHook]

	ExtList []*types.ExtInfo

	curCommandID atomic.Int64

	Config struct {
		CommandPrefix []string
	}
}

func NewBot(prefixes ...string) *Bot {
	b := &Bot{}
	if len(prefixes) == 0 {
		prefixes = []string{"/", "."}
	}
	b.Config.CommandPrefix = prefixes
	return b
}

func (b *Bot) getNextCommandID() int64 {
	return b.curCommandID.Add(1)
}

// Execute 处理一条消息。单条消息内的 panic 在这里被吞掉，不会影响后续消息。
func (b *Bot) Execute(adapterID string, msg *types.Message) {
	if msg == nil {
		return
	}
	if msg.MessageType != types.MessageTypeGroup && msg.MessageType != types.MessageTypePrivate {
		return
	}

	log := zap.S().Named("bot")
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("message handler panic: %v\n%s", r, debug.Stack())
		}
	}()

	msg.Message = msg.Segments.ToText()
	mctx := types.NewMsgContext(context.Background(), b, adapterID, msg)

	if b.runMessageInHooks(adapterID, msg, mctx) {
		return
	}

	cmdArgs := types.CommandParse(msg.Message, b.commandNames(), b.Config.CommandPrefix)
	if cmdArgs == nil {
		return
	}
	cmdArgs.Mentions = msg.Segments.Mentions()
	mctx.CommandID = b.getNextCommandID()

	for _, ext := range b.ExtList {
		cmd, ok := ext.CmdMap[cmdArgs.Command]
		if !ok || cmd.Solve == nil {
			continue
		}
		if cmd.DisabledInPrivate && mctx.IsPrivate {
			ReplyToSender(mctx, msg, "该指令只能在群聊中使用")
			return
		}
		log.Debugf("command %s from %s: %q", cmdArgs.Command, msg.Sender.UserID, cmdArgs.CleanArgs)
		ret := cmd.Solve(mctx, msg, cmdArgs)
		if ret.ShowHelp {
			ReplyToSender(mctx, msg, helpText(cmd))
		}
		if ret.Solved {
			return
		}
	}
}

func (b *Bot) commandNames() []string {
	var names []string
	for _, ext := range b.ExtList {
		for name := range ext.CmdMap {
			names = append(names, name)
		}
	}
	return names
}

func helpText(cmd *types.CmdItemInfo) string {
	if cmd.Help != "" {
		return cmd.Help
	}
	return cmd.ShortHelp
}

func (b *Bot) SendReply(msg *types.MsgToReply) {
	if msg == nil {
		return
	}

	b.CallbackForSendMsg.Range(func(_ string, send func(msg *types.MsgToReply)) bool {
		send(msg)
		return true
	})
}

func (b *Bot) RegisterMessageInHook(name string, priority types.HookPriority, hook types.MessageInHook) (types.HookHandle, error) {
	if hook == nil {
		return "", errNilHook
	}
	return b.inboundHooks.register(name, priority, hook)
}

func (b *Bot) UnregisterMessageInHook(handle types.HookHandle) bool {
	return b.inboundHooks.unregister(handle)
}

func (b *Bot) RegisterEventHook(name string, priority types.HookPriority, hook types.EventHook) (types.HookHandle, error) {
	if hook == nil {
		return "", errNilHook
	}
	return b.eventHooks.register(name, priority, hook)
}

func (b *Bot) UnregisterEventHook(handle types.HookHandle) bool {
	return b.eventHooks.unregister(handle)
}

// DispatchEvent 把 notice/request/meta_event 交给事件钩子
func (b *Bot) DispatchEvent(adapterID string, evt *types.AdapterEvent) {
	if evt == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			zap.S().Named("bot").Errorf("event hook panic: %v\n%s", r, debug.Stack())
		}
	}()

	for _, entry := range b.eventHooks.snapshot() {
		switch entry.handler(b, adapterID, evt) {
		case types.HookResultStop, types.HookResultAbort:
			return
		}
	}
}

// runMessageInHooks 返回 true 表示消息被钩子截获，不再进入指令处理
func (b *Bot) runMessageInHooks(adapterID string, msg *types.Message, mctx *types.MsgContext) bool {
	for _, entry := range b.inboundHooks.snapshot() {
		switch entry.handler(b, adapterID, msg, mctx) {
		case types.HookResultContinue:
			continue
		case types.HookResultStop:
			return false
		case types.HookResultAbort:
			return true
		}
	}
	return false
}
