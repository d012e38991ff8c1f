package operator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	ErrMonitorActive  = errors.New("已在模仿其他用户，请先停止当前模仿")
	ErrGroupNotFound  = errors.New("机器人不在目标群中")
	ErrConfirmTimeout = errors.New("等待确认超时")
)

type Options struct {
	Interval      time.Duration
	AvatarTimeout time.Duration
	// StopTimeout Stop 等待旧任务退出的最长时间
	StopTimeout           time.Duration
	MutationRatePerMinute int
	Clock                 clock.Clock
	AvatarURL             func(userID int64) string
}

func (o *Options) withDefaults() {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Minute
	}
	if o.AvatarTimeout <= 0 {
		o.AvatarTimeout = 15 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.AvatarURL == nil {
		o.AvatarURL = AvatarURL
	}
}

// Confirmer 询问是否用 next 替换 current。超时返回 ErrConfirmTimeout
type Confirmer func(ctx context.Context, current, next Target) (bool, error)

type ReplaceResult int

const (
	ReplaceStarted ReplaceResult = iota
	ReplaceReplaced
	ReplaceUnchanged
	ReplaceDeclined
)

// Status 当前模仿状态快照
type Status struct {
	Active      bool
	Target      Target
	RunID       string
	Phase       MonitorState
	LastExit    MonitorState
	Started     time.Time
	Cycles      int64
	LastCycle   time.Time
	Fingerprint *Fingerprint
}

// Lifecycle 管理唯一的模仿任务：启动、停止、替换、自动恢复
type Lifecycle struct {
	caller  ActionCaller
	state   State
	store   Store
	reader  *ProfileReader
	mutator *Mutator
	opts    Options
	log     *zap.SugaredLogger
}

func NewLifecycle(caller ActionCaller, store Store, opts Options) *Lifecycle {
	opts.withDefaults()
	if store == nil {
		store = nopStore{}
	}
	reader := NewProfileReader(caller)
	reader.AvatarURLFor = opts.AvatarURL
	return &Lifecycle{
		caller:  caller,
		store:   store,
		reader:  reader,
		mutator: NewMutator(caller, opts.MutationRatePerMinute),
		opts:    opts,
		log:     zap.S().Named("operator"),
	}
}

func (l *Lifecycle) Reader() *ProfileReader { return l.reader }

func (l *Lifecycle) Mutator() *Mutator { return l.mutator }

func (l *Lifecycle) Interval() time.Duration { return l.opts.Interval }

// Start 没有进行中的任务时启动，否则返回 ErrMonitorActive
func (l *Lifecycle) Start(target Target, origin *Origin) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if l.state.run != nil {
		return ErrMonitorActive
	}
	l.startLocked(target, origin)
	return nil
}

func (l *Lifecycle) startLocked(target Target, origin *Origin) {
	fp, err := l.store.LoadFingerprint(target)
	if err != nil {
		l.log.Warnf("%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &monitorRun{
		id:      uuid.NewString(),
		target:  target,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: l.opts.Clock.Now(),
	}
	run.setPhase(StateRunning)

	l.state.target = &target
	l.state.fingerprint = fp
	l.state.run = run
	if err := l.store.SaveTarget(target.String()); err != nil {
		l.log.Warnf("%v", err)
	}

	m := &Monitor{
		run:           run,
		state:         &l.state,
		reader:        l.reader,
		mutator:       l.mutator,
		store:         l.store,
		clock:         l.opts.Clock,
		interval:      l.opts.Interval,
		avatarTimeout: l.opts.AvatarTimeout,
		origin:        origin,
		log:           l.log.With("run", run.id[:8], "group", target.GroupID, "user", target.UserID),
	}
	go func() {
		defer close(run.done)
		defer cancel()
		m.Run(ctx)
	}()
}

// stopLocked 取消任务并清空状态，返回被取消的任务
func (l *Lifecycle) stopLocked() *monitorRun {
	run := l.state.run
	if run != nil {
		run.cancel()
		l.state.lastExit = StateStopped
	}
	l.state.run = nil
	l.state.target = nil
	l.state.fingerprint = nil

	if err := l.store.ClearTarget(); err != nil {
		l.log.Warnf("%v", err)
	}
	if err := l.store.ClearFingerprints(); err != nil {
		l.log.Warnf("%v", err)
	}
	return run
}

func (l *Lifecycle) wait(run *monitorRun) {
	if run == nil {
		return
	}
	select {
	case <-run.done:
	case <-time.After(l.opts.StopTimeout):
		l.log.Warnf("等待模仿任务%s退出超时", run.id[:8])
	}
}

// Stop 停止任务并清空持久化的目标。没有任务时同样清空持久化目标，返回 false
func (l *Lifecycle) Stop() bool {
	l.state.mu.Lock()
	run := l.stopLocked()
	l.state.mu.Unlock()

	l.wait(run)
	if run != nil {
		l.log.Infof("已停止模仿: %s", run.target)
	}
	return run != nil
}

// Active 当前目标
func (l *Lifecycle) Active() (Target, bool) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if l.state.run == nil || l.state.target == nil {
		return Target{}, false
	}
	return *l.state.target, true
}

// Replace 没有任务时直接启动；已有任务时先询问，确认后在同一把锁内先停再启。
// 询问期间旧任务继续运行，拒绝或超时不改变任何状态。
func (l *Lifecycle) Replace(ctx context.Context, target Target, origin *Origin, confirm Confirmer) (ReplaceResult, error) {
	current, active := l.Active()
	if !active {
		err := l.Start(target, origin)
		if err == nil {
			return ReplaceStarted, nil
		}
		if !errors.Is(err, ErrMonitorActive) {
			return ReplaceDeclined, err
		}
		current, active = l.Active()
	}
	if active && current == target {
		return ReplaceUnchanged, nil
	}
	if confirm == nil {
		return ReplaceDeclined, ErrMonitorActive
	}

	ok, err := confirm(ctx, current, target)
	if err != nil {
		return ReplaceDeclined, err
	}
	if !ok {
		return ReplaceDeclined, nil
	}

	l.state.mu.Lock()
	old := l.stopLocked()
	l.startLocked(target, origin)
	l.state.mu.Unlock()

	l.wait(old)
	l.log.Infof("模仿目标已替换: %s -> %s", current, target)
	return ReplaceReplaced, nil
}

// Resume 连接建立后调用。优先使用持久化的目标，未写入过时使用配置文件中的目标
func (l *Lifecycle) Resume(ctx context.Context, configured string) error {
	raw := configured
	if stored, found, err := l.store.LoadTarget(); err != nil {
		l.log.Warnf("%v", err)
	} else if found {
		raw = stored
	}
	if isStoredEmpty(raw) {
		l.log.Info("模仿目标为空，不启动自动模仿任务")
		return nil
	}

	target, err := ParseTarget(raw)
	if err != nil {
		l.log.Errorf("自动模仿失败: %v", err)
		return err
	}

	exists, err := l.groupExists(ctx, target.GroupID)
	if err != nil {
		l.log.Errorf("自动模仿失败，获取群列表出错: %v", err)
		return err
	}
	if !exists {
		l.log.Errorf("自动模仿失败，机器人不在群%d中", target.GroupID)
		return errors.Wrapf(ErrGroupNotFound, "群号%d", target.GroupID)
	}

	if err := l.Start(target, nil); err != nil {
		return err
	}
	l.log.Infof("自动模仿任务已启动，目标: 群%d用户%d", target.GroupID, target.UserID)
	return nil
}

// GroupList 机器人加入的群
func (l *Lifecycle) GroupList(ctx context.Context) ([]gjson.Result, error) {
	resp, err := call(ctx, l.caller, ActionGetGroupList, map[string]any{"no_cache": false})
	if err != nil {
		return nil, err
	}
	payload := resp.Payload()
	if !payload.IsArray() {
		return nil, errors.Errorf("群列表格式错误: %s", abbreviate(payload.Raw, 200))
	}
	return payload.Array(), nil
}

func (l *Lifecycle) groupExists(ctx context.Context, groupID int64) (bool, error) {
	groups, err := l.GroupList(ctx)
	if err != nil {
		return false, err
	}
	return lo.ContainsBy(groups, func(g gjson.Result) bool {
		return g.Get("group_id").Int() == groupID
	}), nil
}

// Status 返回状态快照
func (l *Lifecycle) Status() Status {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	st := Status{LastExit: l.state.lastExit, Fingerprint: l.state.fingerprint.clone()}
	if run := l.state.run; run != nil && l.state.target != nil {
		st.Active = true
		st.Target = *l.state.target
		st.RunID = run.id
		st.Phase = run.Phase()
		st.Started = run.started
		st.Cycles = run.cycles.Load()
		if ts := run.lastCycle.Load(); ts > 0 {
			st.LastCycle = time.Unix(ts, 0)
		}
	}
	return st
}

// Wait 阻塞直到当前任务退出，测试使用
func (l *Lifecycle) Wait(ctx context.Context) {
	l.state.mu.Lock()
	run := l.state.run
	l.state.mu.Unlock()
	if run == nil {
		return
	}
	select {
	case <-run.done:
	case <-ctx.Done():
	}
}

// shutdown 进程退出时调用，只取消任务，不清除持久化的目标和指纹
func (l *Lifecycle) shutdown() {
	l.state.mu.Lock()
	run := l.state.run
	if run != nil {
		run.cancel()
	}
	l.state.run = nil
	l.state.target = nil
	l.state.fingerprint = nil
	l.state.mu.Unlock()

	l.wait(run)
}
