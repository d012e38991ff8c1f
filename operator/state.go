package operator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type MonitorState int32

const (
	StateIdle MonitorState = iota
	StateRunning
	StateSleeping
	StateStopped
	StateFailed
)

func (s MonitorState) String() string {
	switch s {
	case StateIdle:
		return "空闲"
	case StateRunning:
		return "同步中"
	case StateSleeping:
		return "等待中"
	case StateStopped:
		return "已停止"
	case StateFailed:
		return "已失败"
	default:
		return "未知"
	}
}

// monitorRun 正在进行的一次监控任务
type monitorRun struct {
	id      string
	target  Target
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time

	phase     atomic.Int32
	cycles    atomic.Int64
	lastCycle atomic.Int64
}

func (r *monitorRun) setPhase(s MonitorState) {
	r.phase.Store(int32(s))
}

func (r *monitorRun) Phase() MonitorState {
	return MonitorState(r.phase.Load())
}

// State 模仿目标、指纹和当前任务，三者只在持锁时一起修改
type State struct {
	mu          sync.Mutex
	target      *Target
	fingerprint *Fingerprint
	run         *monitorRun
	lastExit    MonitorState
}

func (s *State) owns(runID string) bool {
	return s.run != nil && s.run.id == runID
}

// targetFor 任务仍然持有状态时返回目标
func (s *State) targetFor(runID string) (Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owns(runID) || s.target == nil {
		return Target{}, false
	}
	return *s.target, true
}

func (s *State) fingerprintFor(runID string) (*Fingerprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owns(runID) {
		return nil, false
	}
	return s.fingerprint.clone(), true
}

// commitFingerprint 在持锁期间写内存和存储，任务已被替换或停止时都不写
func (s *State) commitFingerprint(runID string, target Target, fp *Fingerprint, store Store) (owned bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owns(runID) {
		return false, nil
	}
	s.fingerprint = fp.clone()
	return true, store.SaveFingerprint(target, fp)
}

// release 任务退出时调用，仍持有状态说明是异常退出，清空目标和指纹
func (s *State) release(runID string, exit MonitorState) (cleared bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owns(runID) {
		return false
	}
	s.lastExit = exit
	s.run = nil
	s.target = nil
	s.fingerprint = nil
	return true
}
