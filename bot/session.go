package bot

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sealdice/qqoperator/bot/types"
)

var ErrWaitTimeout = errors.New("等待回复超时")

// messageWaiter 挂在会话优先级上的一次性钩子
type messageWaiter struct {
	b      *Bot
	handle types.HookHandle
	got    chan *types.Message
	once   sync.Once
}

// ExpectNextMessage 挂一个会话钩子，截获下一条满足 match 的消息。
// 截获的消息不会再触发指令。适配器需要在独立 goroutine 中调用 Execute，否则等不到消息。
func (b *Bot) ExpectNextMessage(match func(msg *types.Message) bool) (types.MessageWaiter, error) {
	w := &messageWaiter{b: b, got: make(chan *types.Message, 1)}
	handle, err := b.RegisterMessageInHook("session-wait", types.HookPrioritySession,
		func(_ types.BotLike, _ string, msg *types.Message, _ *types.MsgContext) types.HookResult {
			if !match(msg) {
				return types.HookResultContinue
			}
			select {
			case w.got <- msg:
				return types.HookResultAbort
			default:
				// 已经拿到过一条，后续消息照常处理
				return types.HookResultContinue
			}
		})
	if err != nil {
		return nil, err
	}
	w.handle = handle
	return w, nil
}

// Wait 阻塞到收到消息、超时或 ctx 取消，返回后钩子即被移除
func (w *messageWaiter) Wait(ctx context.Context, timeout time.Duration) (*types.Message, error) {
	defer w.Close()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case msg := <-w.got:
		return msg, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrWaitTimeout
		}
		return nil, ctx.Err()
	}
}

func (w *messageWaiter) Close() {
	w.once.Do(func() {
		w.b.UnregisterMessageInHook(w.handle)
	})
}

// WaitNextMessage ExpectNextMessage 加 Wait
func (b *Bot) WaitNextMessage(ctx context.Context, timeout time.Duration, match func(msg *types.Message) bool) (*types.Message, error) {
	w, err := b.ExpectNextMessage(match)
	if err != nil {
		return nil, err
	}
	return w.Wait(ctx, timeout)
}

// SameSender 匹配同一场景下同一个人发来的消息
func SameSender(origin *types.Message) func(msg *types.Message) bool {
	return func(msg *types.Message) bool {
		return msg.Sender.UserID == origin.Sender.UserID &&
			msg.MessageType == origin.MessageType &&
			msg.GroupID == origin.GroupID
	}
}
