package operator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	aliceTarget = Target{GroupID: 100, UserID: 200}
	bobTarget   = Target{GroupID: 100, UserID: 300}
)

func TestMonitorSyncsOnlyOnChange(t *testing.T) {
	a := assert.New(t)
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))
	h1 := []byte("\x89PNG\r\n\x1a\nH1")
	h2 := []byte("\x89PNG\r\n\x1a\nH2")
	env.avatars.set(h1)

	require.NoError(t, env.lifecycle.Start(aliceTarget, &Origin{BotID: 999}))
	env.waitCycles(t, 1)

	a.Equal(1, env.caller.count(ActionSetQQAvatar))
	a.Equal(1, env.caller.count(ActionSetGroupCard))
	call, _ := env.caller.last(ActionSetGroupCard)
	a.Equal(map[string]any{"group_id": int64(100), "user_id": int64(999), "card": "Alice"}, call.Params)
	call, _ = env.caller.last(ActionSetQQAvatar)
	a.Equal(env.avatars.urlFor(200), call.Params["file"])
	a.Zero(env.caller.count(ActionGetLoginInfo), "bot id comes from the origin message")

	st := env.lifecycle.Status()
	a.Equal(&Fingerprint{Nickname: "Alice", Card: "Alice", AvatarHash: HashBytes(h1)}, st.Fingerprint)

	// 无变化
	env.tick()
	env.waitCycles(t, 2)
	a.Equal(1, env.caller.count(ActionSetQQAvatar))
	a.Equal(1, env.caller.count(ActionSetGroupCard))

	// 只有头像变化，只更新头像
	env.avatars.set(h2)
	env.tick()
	env.waitCycles(t, 3)
	a.Equal(2, env.caller.count(ActionSetQQAvatar))
	a.Equal(1, env.caller.count(ActionSetGroupCard))
	a.Equal(HashBytes(h2), env.lifecycle.Status().Fingerprint.AvatarHash)

	fp, err := env.store.LoadFingerprint(aliceTarget)
	require.NoError(t, err)
	a.Equal(HashBytes(h2), fp.AvatarHash)
}

func TestMonitorSkipsWhenDataMissing(t *testing.T) {
	a := assert.New(t)
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "", ""))

	require.NoError(t, env.lifecycle.Start(aliceTarget, nil))
	env.waitCycles(t, 1)
	a.Zero(env.caller.count(ActionSetQQAvatar))
	a.Zero(env.avatars.hits.Load(), "avatar is not downloaded without a profile")

	// 头像下载失败同样跳过
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", ""))
	env.avatars.status.Store(404)
	env.tick()
	env.waitCycles(t, 2)
	a.Zero(env.caller.count(ActionSetQQAvatar))
	a.Zero(env.caller.count(ActionSetGroupCard))
	a.Nil(env.lifecycle.Status().Fingerprint)
	a.True(env.lifecycle.Status().Active)
}

func TestMonitorRetriesFailedMutation(t *testing.T) {
	a := assert.New(t)
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))
	env.caller.reply(ActionSetGroupCard, `{"status":"failed","retcode":103,"data":null,"message":"权限不足"}`)

	require.NoError(t, env.lifecycle.Start(aliceTarget, &Origin{BotID: 999}))
	env.waitCycles(t, 1)
	fp := env.lifecycle.Status().Fingerprint
	require.NotNil(t, fp)
	a.Empty(fp.Card, "failed card is not recorded")
	a.NotEmpty(fp.AvatarHash)

	env.caller.reply(ActionSetGroupCard, `{"status":"ok","data":null}`)
	env.tick()
	env.waitCycles(t, 2)
	a.Equal(2, env.caller.count(ActionSetGroupCard))
	a.Equal(1, env.caller.count(ActionSetQQAvatar), "unchanged avatar is not uploaded again")
	a.Equal("Alice", env.lifecycle.Status().Fingerprint.Card)

	env.tick()
	env.waitCycles(t, 3)
	a.Equal(2, env.caller.count(ActionSetGroupCard), "nothing left to retry")
	a.Equal(1, env.caller.count(ActionSetQQAvatar))
}

func TestMonitorKeepsAvatarWhenCardKeepsFailing(t *testing.T) {
	a := assert.New(t)
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))
	env.caller.reply(ActionSetGroupCard, `{"status":"failed","retcode":103,"data":null,"message":"权限不足"}`)

	require.NoError(t, env.lifecycle.Start(aliceTarget, &Origin{BotID: 999}))
	env.waitCycles(t, 1)
	for i := int64(2); i <= 5; i++ {
		env.tick()
		env.waitCycles(t, i)
	}

	a.Equal(1, env.caller.count(ActionSetQQAvatar))
	a.Equal(5, env.caller.count(ActionSetGroupCard), "card is retried every cycle")

	fp, err := env.store.LoadFingerprint(aliceTarget)
	require.NoError(t, err)
	require.NotNil(t, fp)
	a.Equal(HashBytes(env.avatars.body.Load().([]byte)), fp.AvatarHash)
	a.Empty(fp.Card)
}

func TestMonitorKeepsAvatarWhenBotIDUnresolved(t *testing.T) {
	a := assert.New(t)
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))

	// 没有 origin，get_login_info 也不可用
	require.NoError(t, env.lifecycle.Start(aliceTarget, nil))
	env.waitCycles(t, 1)
	for i := int64(2); i <= 5; i++ {
		env.tick()
		env.waitCycles(t, i)
	}

	a.Equal(1, env.caller.count(ActionSetQQAvatar))
	a.Zero(env.caller.count(ActionSetGroupCard))
	a.Equal(5, env.caller.count(ActionGetLoginInfo))
}

func TestStopDuringMutationWritesNoFingerprint(t *testing.T) {
	a := assert.New(t)
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))

	entered := make(chan struct{})
	release := make(chan struct{})
	env.caller.on(ActionSetQQAvatar, func(map[string]any) (json.RawMessage, error) {
		close(entered)
		<-release
		return json.RawMessage(`{"status":"ok","retcode":0,"data":null}`), nil
	})

	require.NoError(t, env.lifecycle.Start(aliceTarget, &Origin{BotID: 999}))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("set_qq_avatar was not called")
	}

	stopped := make(chan bool)
	go func() { stopped <- env.lifecycle.Stop() }()
	require.Eventually(t, func() bool {
		return !env.lifecycle.Status().Active
	}, 2*time.Second, time.Millisecond)
	close(release)
	a.True(<-stopped)

	a.Nil(env.lifecycle.Status().Fingerprint)
	a.Equal(StateStopped, env.lifecycle.Status().LastExit)
	a.Zero(env.caller.count(ActionSetGroupCard), "no mutation after cancel")
	fp, err := env.store.LoadFingerprint(aliceTarget)
	require.NoError(t, err)
	a.Nil(fp)
}

func TestCommitFingerprintRequiresOwnership(t *testing.T) {
	a := assert.New(t)
	store := newMemoryStore(t)
	var st State
	st.run = &monitorRun{id: "current"}
	fp := &Fingerprint{Nickname: "Alice", Card: "Alice", AvatarHash: "h1"}

	owned, err := st.commitFingerprint("stale", aliceTarget, fp, store)
	a.False(owned)
	a.NoError(err)
	a.Nil(st.fingerprint)
	stored, err := store.LoadFingerprint(aliceTarget)
	require.NoError(t, err)
	a.Nil(stored, "released run does not persist")

	owned, err = st.commitFingerprint("current", aliceTarget, fp, store)
	a.True(owned)
	a.NoError(err)
	a.Equal(fp, st.fingerprint)
	stored, err = store.LoadFingerprint(aliceTarget)
	require.NoError(t, err)
	a.Equal(fp, stored)
}

func TestMonitorResolvesBotIDFromLoginInfo(t *testing.T) {
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))
	env.caller.reply(ActionGetLoginInfo, `{"status":"ok","data":{"user_id":555}}`)

	require.NoError(t, env.lifecycle.Start(aliceTarget, nil))
	env.waitCycles(t, 1)
	call, ok := env.caller.last(ActionSetGroupCard)
	require.True(t, ok)
	assert.Equal(t, int64(555), call.Params["user_id"])
}

func TestMonitorFailureClearsState(t *testing.T) {
	env := newTestEnv(t)
	env.caller.on(ActionGetGroupMemberInfo, func(map[string]any) (json.RawMessage, error) {
		panic("boom")
	})

	require.NoError(t, env.lifecycle.Start(aliceTarget, nil))
	require.Eventually(t, func() bool {
		return !env.lifecycle.Status().Active
	}, 2*time.Second, time.Millisecond)

	st := env.lifecycle.Status()
	assert.Equal(t, StateFailed, st.LastExit)
	_, active := env.lifecycle.Active()
	assert.False(t, active)

	// 失败后可以重新开始
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))
	require.NoError(t, env.lifecycle.Start(aliceTarget, nil))
}

func TestStartAtMostOne(t *testing.T) {
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			if env.lifecycle.Start(Target{GroupID: 100, UserID: uid}, nil) == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}(int64(200 + i))
	}
	wg.Wait()
	assert.Equal(t, 1, started)
	assert.ErrorIs(t, env.lifecycle.Start(aliceTarget, nil), ErrMonitorActive)
}

func TestStopIsIdempotentAndCancelsSleep(t *testing.T) {
	a := assert.New(t)
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))

	a.False(env.lifecycle.Stop(), "nothing to stop")
	a.False(env.lifecycle.Status().Active)

	require.NoError(t, env.lifecycle.Start(aliceTarget, nil))
	env.waitCycles(t, 1)
	calls := env.caller.total()

	a.True(env.lifecycle.Stop())
	a.False(env.lifecycle.Status().Active)
	a.Nil(env.lifecycle.Status().Fingerprint)

	env.tick()
	time.Sleep(20 * time.Millisecond)
	a.Equal(calls, env.caller.total(), "no calls after stop")

	a.False(env.lifecycle.Stop())

	v, found, err := env.store.LoadTarget()
	require.NoError(t, err)
	a.True(found)
	a.Empty(v)
	fp, err := env.store.LoadFingerprint(aliceTarget)
	require.NoError(t, err)
	a.Nil(fp)
}

func TestReplace(t *testing.T) {
	a := assert.New(t)
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))
	ctx := context.Background()

	asked := 0
	answer := func(ok bool, err error) Confirmer {
		return func(_ context.Context, current, next Target) (bool, error) {
			asked++
			a.Equal(aliceTarget, current)
			a.Equal(bobTarget, next)
			return ok, err
		}
	}

	res, err := env.lifecycle.Replace(ctx, aliceTarget, nil, answer(true, nil))
	require.NoError(t, err)
	a.Equal(ReplaceStarted, res)
	a.Zero(asked, "no confirmation when idle")
	env.waitCycles(t, 1)
	runID := env.lifecycle.Status().RunID

	res, err = env.lifecycle.Replace(ctx, aliceTarget, nil, answer(true, nil))
	require.NoError(t, err)
	a.Equal(ReplaceUnchanged, res)

	res, err = env.lifecycle.Replace(ctx, bobTarget, nil, answer(false, nil))
	require.NoError(t, err)
	a.Equal(ReplaceDeclined, res)
	a.Equal(runID, env.lifecycle.Status().RunID)
	a.Equal(aliceTarget, env.lifecycle.Status().Target)

	res, err = env.lifecycle.Replace(ctx, bobTarget, nil, answer(false, ErrConfirmTimeout))
	a.ErrorIs(err, ErrConfirmTimeout)
	a.Equal(ReplaceDeclined, res)
	a.Equal(runID, env.lifecycle.Status().RunID)

	res, err = env.lifecycle.Replace(ctx, bobTarget, nil, nil)
	a.ErrorIs(err, ErrMonitorActive)
	a.Equal(ReplaceDeclined, res)

	res, err = env.lifecycle.Replace(ctx, bobTarget, nil, answer(true, nil))
	require.NoError(t, err)
	a.Equal(ReplaceReplaced, res)
	st := env.lifecycle.Status()
	a.Equal(bobTarget, st.Target)
	a.NotEqual(runID, st.RunID)
	a.Equal(3, asked)

	v, _, err := env.store.LoadTarget()
	require.NoError(t, err)
	a.Equal(bobTarget.String(), v)
}

func TestResume(t *testing.T) {
	groups := `{"status":"ok","data":[{"group_id":100,"group_name":"test"}]}`
	ctx := context.Background()

	t.Run("configured target", func(t *testing.T) {
		env := newTestEnv(t)
		env.caller.reply(ActionGetGroupList, groups)
		env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))

		require.NoError(t, env.lifecycle.Resume(ctx, "100,200"))
		target, ok := env.lifecycle.Active()
		assert.True(t, ok)
		assert.Equal(t, aliceTarget, target)
	})

	t.Run("stored target wins", func(t *testing.T) {
		env := newTestEnv(t)
		env.caller.reply(ActionGetGroupList, groups)
		env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 300, "Bob", "Bob"))
		require.NoError(t, env.store.SaveTarget(bobTarget.String()))

		require.NoError(t, env.lifecycle.Resume(ctx, "100,200"))
		target, _ := env.lifecycle.Active()
		assert.Equal(t, bobTarget, target)
	})

	t.Run("stopped target is not resumed", func(t *testing.T) {
		env := newTestEnv(t)
		env.caller.reply(ActionGetGroupList, groups)
		require.NoError(t, env.store.ClearTarget())

		require.NoError(t, env.lifecycle.Resume(ctx, "100,200"))
		_, ok := env.lifecycle.Active()
		assert.False(t, ok)
		assert.Zero(t, env.caller.count(ActionGetGroupList))
	})

	t.Run("empty", func(t *testing.T) {
		env := newTestEnv(t)
		assert.NoError(t, env.lifecycle.Resume(ctx, " "))
		assert.Zero(t, env.caller.total())
	})

	t.Run("invalid", func(t *testing.T) {
		env := newTestEnv(t)
		assert.ErrorIs(t, env.lifecycle.Resume(ctx, "100200"), ErrInvalidTarget)
		assert.ErrorIs(t, env.lifecycle.Resume(ctx, "abc,200"), ErrInvalidTarget)
		assert.Zero(t, env.caller.total())
	})

	t.Run("group missing", func(t *testing.T) {
		env := newTestEnv(t)
		env.caller.reply(ActionGetGroupList, `[{"group_id":1}]`)
		assert.ErrorIs(t, env.lifecycle.Resume(ctx, "100,200"), ErrGroupNotFound)
		_, ok := env.lifecycle.Active()
		assert.False(t, ok)
	})

	t.Run("group list failed", func(t *testing.T) {
		env := newTestEnv(t)
		env.caller.reply(ActionGetGroupList, `{"status":"failed","retcode":1,"data":null}`)
		assert.Error(t, env.lifecycle.Resume(ctx, "100,200"))
		_, ok := env.lifecycle.Active()
		assert.False(t, ok)
	})
}

func TestShutdownKeepsStoredTarget(t *testing.T) {
	env := newTestEnv(t)
	env.caller.reply(ActionGetGroupMemberInfo, memberInfoJSON(100, 200, "Alice", "Alice"))

	require.NoError(t, env.lifecycle.Start(aliceTarget, nil))
	env.waitCycles(t, 1)
	env.lifecycle.shutdown()

	assert.False(t, env.lifecycle.Status().Active)
	v, found, err := env.store.LoadTarget()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, aliceTarget.String(), v)

	fp, err := env.store.LoadFingerprint(aliceTarget)
	require.NoError(t, err)
	require.NotNil(t, fp)

	// 重启后带着指纹继续，不会重复上传
	before := env.caller.count(ActionSetQQAvatar)
	require.NoError(t, env.lifecycle.Start(aliceTarget, nil))
	env.waitCycles(t, 1)
	assert.Equal(t, before, env.caller.count(ActionSetQQAvatar))
}
