package operator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrBotIDUnresolved = errors.New("无法获取机器人QQ号")

// Origin 触发模仿的消息上下文，自动恢复时为 nil
type Origin struct {
	BotID int64
}

// loginInfoIDFields get_login_info 中依次尝试的字段
var loginInfoIDFields = []string{"user_id", "uin"}

// Mutator 修改机器人自身资料，所有写操作共享一个限速器
type Mutator struct {
	caller  ActionCaller
	limiter *rate.Limiter
}

// NewMutator perMinute <= 0 时不限速
func NewMutator(caller ActionCaller, perMinute int) *Mutator {
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = min(4, perMinute)
	}
	return &Mutator{caller: caller, limiter: rate.NewLimiter(limit, burst)}
}

func (m *Mutator) mutate(ctx context.Context, action string, params map[string]any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "%s 等待限速", action)
	}
	_, err := call(ctx, m.caller, action, params)
	log := zap.S().Named("operator")
	if err != nil {
		log.Warnf("%s 失败: %v", action, err)
		return err
	}
	log.Infof("%s 成功: %v", action, params)
	return nil
}

// SetAvatar file 可以是 URL、本地路径或 base64://
func (m *Mutator) SetAvatar(ctx context.Context, file string) error {
	return m.mutate(ctx, ActionSetQQAvatar, map[string]any{"file": file})
}

func (m *Mutator) SetGroupCard(ctx context.Context, groupID, botID int64, card string) error {
	return m.mutate(ctx, ActionSetGroupCard, map[string]any{
		"group_id": groupID,
		"user_id":  botID,
		"card":     card,
	})
}

func (m *Mutator) SetNickname(ctx context.Context, nickname string) error {
	return m.mutate(ctx, ActionSetQQProfile, map[string]any{"nickname": nickname})
}

// ResolveBotID 优先取消息里的 self_id，其次 get_login_info
func (m *Mutator) ResolveBotID(ctx context.Context, origin *Origin) (int64, bool) {
	if origin != nil && origin.BotID > 0 {
		return origin.BotID, true
	}

	resp, err := call(ctx, m.caller, ActionGetLoginInfo, nil)
	if err != nil {
		zap.S().Named("operator").Warnf("获取登录信息失败: %v", err)
		return 0, false
	}
	info := resp.Payload()
	for _, field := range loginInfoIDFields {
		if id := info.Get(field).Int(); id > 0 {
			return id, true
		}
	}
	zap.S().Named("operator").Warnf("登录信息中没有QQ号: %s", abbreviate(info.Raw, 200))
	return 0, false
}
