package operator

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sealdice/qqoperator/bot/types"
	"github.com/sealdice/qqoperator/config"
)

const resumeTimeout = 30 * time.Second

// Plugin 把模仿功能和管理指令挂到宿主上
type Plugin struct {
	cfg       *config.Config
	lifecycle *Lifecycle
	probe     *AvatarFetcher

	resumeAttempted atomic.Bool
}

func NewPlugin(lifecycle *Lifecycle, cfg *config.Config) *Plugin {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Plugin{
		cfg:       cfg,
		lifecycle: lifecycle,
		probe:     NewAvatarFetcher(cfg.AvatarWait()),
	}
}

func (p *Plugin) Lifecycle() *Lifecycle { return p.lifecycle }

// Register 注册扩展和连接事件钩子
func (p *Plugin) Register(b types.BotLike) error {
	b.RegisterExtension(p.extInfo())
	_, err := b.RegisterEventHook("qqoperator-resume", types.HookPriorityNormal, p.onEvent)
	return err
}

// onEvent 协议端连上后恢复模仿，每个进程只尝试一次
func (p *Plugin) onEvent(_ types.BotLike, _ string, evt *types.AdapterEvent) types.HookResult {
	if evt.PostType != "meta_event" || evt.Type != "lifecycle" {
		return types.HookResultContinue
	}
	if evt.SubType != "connect" && evt.SubType != "enable" {
		return types.HookResultContinue
	}
	if !p.resumeAttempted.CompareAndSwap(false, true) {
		return types.HookResultContinue
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), resumeTimeout)
		defer cancel()
		if err := p.lifecycle.Resume(ctx, p.cfg.Imitate); err != nil {
			zap.S().Named("operator").Debugf("resume: %v", err)
		}
	}()
	return types.HookResultContinue
}

// Close 停止模仿任务但保留持久化目标，下次启动时恢复
func (p *Plugin) Close() {
	p.lifecycle.shutdown()
	p.probe.Close()
}
