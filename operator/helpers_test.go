package operator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/buntdb"
)

type recordedCall struct {
	Action string
	Params map[string]any
}

type actionHandler func(params map[string]any) (json.RawMessage, error)

// fakeCaller 按 action 返回预设响应并记录调用
type fakeCaller struct {
	mu       sync.Mutex
	calls    []recordedCall
	handlers map[string]actionHandler
}

func newFakeCaller() *fakeCaller {
	f := &fakeCaller{handlers: map[string]actionHandler{}}
	ok := func(map[string]any) (json.RawMessage, error) {
		return json.RawMessage(`{"status":"ok","retcode":0,"data":null}`), nil
	}
	f.on(ActionSetQQAvatar, ok)
	f.on(ActionSetGroupCard, ok)
	f.on(ActionSetQQProfile, ok)
	return f
}

func (f *fakeCaller) on(action string, h actionHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[action] = h
}

func (f *fakeCaller) reply(action, raw string) {
	f.on(action, func(map[string]any) (json.RawMessage, error) {
		return json.RawMessage(raw), nil
	})
}

func (f *fakeCaller) CallAction(_ context.Context, action string, params map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Action: action, Params: params})
	h := f.handlers[action]
	f.mu.Unlock()
	if h == nil {
		return json.RawMessage(`{"status":"failed","retcode":1404,"message":"不支持的API","data":null}`), nil
	}
	return h(params)
}

func (f *fakeCaller) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Action == action {
			n++
		}
	}
	return n
}

func (f *fakeCaller) last(action string) (recordedCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Action == action {
			return f.calls[i], true
		}
	}
	return recordedCall{}, false
}

func (f *fakeCaller) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func memberInfoJSON(groupID, userID int64, nickname, card string) string {
	data, _ := json.Marshal(map[string]any{
		"status":  "ok",
		"retcode": 0,
		"data": map[string]any{
			"group_id": groupID,
			"user_id":  userID,
			"nickname": nickname,
			"card":     card,
			"sex":      "female",
			"role":     "member",
		},
	})
	return string(data)
}

// avatarServer 返回可随时替换的头像内容
type avatarServer struct {
	*httptest.Server
	body   atomic.Value
	status atomic.Int32
	hits   atomic.Int32
}

func newAvatarServer(t *testing.T, body []byte) *avatarServer {
	s := &avatarServer{}
	s.body.Store(body)
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.WriteHeader(int(s.status.Load()))
		_, _ = w.Write(s.body.Load().([]byte))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *avatarServer) urlFor(userID int64) string {
	return s.URL + "/avatar/" + strconv.FormatInt(userID, 10)
}

func (s *avatarServer) set(body []byte) {
	s.body.Store(body)
}

func newMemoryStore(t *testing.T) *BuntStore {
	db, err := buntdb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBuntStore(db)
}

type testEnv struct {
	caller    *fakeCaller
	avatars   *avatarServer
	store     *BuntStore
	clock     *clock.Mock
	lifecycle *Lifecycle
}

const testInterval = 10 * time.Minute

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		caller:  newFakeCaller(),
		avatars: newAvatarServer(t, []byte("\x89PNG\r\n\x1a\nH1")),
		store:   newMemoryStore(t),
		clock:   clock.NewMock(),
	}
	env.lifecycle = NewLifecycle(env.caller, env.store, Options{
		Interval:      testInterval,
		AvatarTimeout: time.Second,
		StopTimeout:   time.Second,
		Clock:         env.clock,
		AvatarURL:     env.avatars.urlFor,
	})
	t.Cleanup(env.lifecycle.shutdown)
	return env
}

// waitCycles 等到第 n 轮结束且任务已进入休眠
func (env *testEnv) waitCycles(t *testing.T, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := env.lifecycle.Status()
		return st.Active && st.Cycles >= n && st.Phase == StateSleeping
	}, 2*time.Second, time.Millisecond)
}

func (env *testEnv) tick() {
	env.clock.Add(testInterval)
}
