package operator

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errRunReleased = errors.New("监控任务已被替换")

// Monitor 单个后台任务：读取目标资料，变化时同步到机器人，然后休眠
type Monitor struct {
	run      *monitorRun
	state    *State
	reader   *ProfileReader
	mutator  *Mutator
	store    Store
	clock    clock.Clock
	interval time.Duration

	avatarTimeout time.Duration
	origin        *Origin
	log           *zap.SugaredLogger
}

// Run 阻塞直到 ctx 取消、任务被替换或出现异常
func (m *Monitor) Run(ctx context.Context) (exit MonitorState) {
	fetcher := NewAvatarFetcher(m.avatarTimeout)
	defer fetcher.Close()

	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("模仿监控任务异常: %v\n%s", r, debug.Stack())
			exit = StateFailed
		}
		m.run.setPhase(exit)
		if m.state.release(m.run.id, exit) {
			m.log.Warnf("模仿监控任务异常退出，已清空模仿目标")
		}
	}()

	m.log.Infof("模仿监控任务启动: %s", m.run.target)
	for {
		if ctx.Err() != nil {
			return StateStopped
		}
		target, ok := m.state.targetFor(m.run.id)
		if !ok {
			return StateStopped
		}

		m.run.setPhase(StateRunning)
		if err := m.runCycle(ctx, fetcher, target); err != nil {
			if ctx.Err() != nil || errors.Is(err, errRunReleased) {
				return StateStopped
			}
			m.log.Errorf("模仿监控任务出错: %+v", err)
			return StateFailed
		}
		m.run.cycles.Add(1)
		m.run.lastCycle.Store(m.clock.Now().Unix())

		if !m.sleep(ctx) {
			return StateStopped
		}
	}
}

func (m *Monitor) sleep(ctx context.Context) bool {
	timer := m.clock.Timer(m.interval)
	defer timer.Stop()
	m.run.setPhase(StateSleeping)
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// runCycle 一轮同步。数据不全时直接跳过；只有取消会返回 error
func (m *Monitor) runCycle(ctx context.Context, fetcher *AvatarFetcher, target Target) error {
	profile, ok := m.reader.Fetch(ctx, target)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		m.log.Debugf("未取到群%d用户%d的资料，跳过本轮", target.GroupID, target.UserID)
		return nil
	}

	img, ok := fetcher.Fetch(ctx, profile.AvatarURL)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return nil
	}

	cached, owned := m.state.fingerprintFor(m.run.id)
	if !owned {
		return errRunReleased
	}
	if !NeedsUpdate(cached, profile, img.Hash) {
		m.log.Debugf("用户%d资料无变化", target.UserID)
		return nil
	}

	// 只发送发生变化的那一项
	var avatarErr, cardErr error
	avatarDone, cardDone := false, false
	if avatarStale(cached, img.Hash) {
		avatarErr = m.mutator.SetAvatar(ctx, profile.AvatarURL)
		avatarDone = avatarErr == nil
	}
	if cardStale(cached, profile) {
		if botID, ok := m.mutator.ResolveBotID(ctx, m.origin); ok {
			cardErr = m.mutator.SetGroupCard(ctx, target.GroupID, botID, profile.Card)
		} else {
			cardErr = ErrBotIDUnresolved
		}
		cardDone = cardErr == nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := multierr.Combine(
		errors.Wrap(avatarErr, "更新头像"),
		errors.Wrap(cardErr, "更新群名片"),
	); err != nil {
		m.log.Warnf("同步用户%d资料部分失败: %v", target.UserID, err)
	}

	if !avatarDone && !cardDone {
		return nil
	}
	next := applied(cached, profile, img.Hash, avatarDone, cardDone)
	owned, err := m.state.commitFingerprint(m.run.id, target, next, m.store)
	if !owned {
		return errRunReleased
	}
	if err != nil {
		m.log.Warnf("%v", err)
	}
	m.log.Infof("已同步用户%d资料: 名片=%s 头像md5=%s", target.UserID, next.Card, next.AvatarHash)
	return nil
}
