package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sealdice/qqoperator/bot/types"
)

func TestRegisterAndUnregisterMessageInHook(t *testing.T) {
	var b Bot
	as := assert.New(t)

	callCount := 0
	hook := func(bl types.BotLike, adapterID string, msg *types.Message, ctx *types.MsgContext) types.HookResult {
		callCount++
		as.Equal("adapter", adapterID, "unexpected adapterID")
		return types.HookResultContinue
	}

	handle, err := b.RegisterMessageInHook("test", types.HookPriorityNormal, hook)
	as.NoError(err)

	aborted := b.runMessageInHooks("adapter", &types.Message{}, &types.MsgContext{})
	as.False(aborted, "runMessageInHooks should not abort for continue result")
	as.Equal(1, callCount, "hook should run exactly once")

	as.True(b.UnregisterMessageInHook(handle), "expected unregister to succeed")
	as.False(b.UnregisterMessageInHook(handle), "unregistering twice should fail")

	callCount = 0
	b.runMessageInHooks("adapter", &types.Message{}, &types.MsgContext{})
	as.Zero(callCount, "hook should not fire after unregistration")
}

func TestRegisterNilHook(t *testing.T) {
	var b Bot
	_, err := b.RegisterMessageInHook("nil", types.HookPriorityNormal, nil)
	assert.Error(t, err)
	_, err = b.RegisterEventHook("nil", types.HookPriorityNormal, nil)
	assert.Error(t, err)

	var hook types.MessageInHook
	_, err = b.RegisterMessageInHook("typed nil", types.HookPriorityNormal, hook)
	assert.Error(t, err)
	assert.Nil(t, b.inboundHooks.snapshot(), "nil hooks are not stored")
	b.DispatchEvent("adapter", &types.AdapterEvent{})
}

func TestMessageInHookPriorityOrder(t *testing.T) {
	var b Bot
	as := assert.New(t)
	order := []string{}

	makeHook := func(tag string) types.MessageInHook {
		return func(types.BotLike, string, *types.Message, *types.MsgContext) types.HookResult {
			order = append(order, tag)
			return types.HookResultContinue
		}
	}

	_, err := b.RegisterMessageInHook("low", types.HookPriorityLow, makeHook("low"))
	as.NoError(err)
	_, err = b.RegisterMessageInHook("high", types.HookPriorityHigh, makeHook("high"))
	as.NoError(err)
	_, err = b.RegisterMessageInHook("normal", types.HookPriorityNormal, makeHook("normal"))
	as.NoError(err)
	_, err = b.RegisterMessageInHook("normal-2", types.HookPriorityNormal, makeHook("normal-2"))
	as.NoError(err)

	b.runMessageInHooks("adapter", &types.Message{}, &types.MsgContext{})

	as.Equal([]string{"high", "normal", "normal-2", "low"}, order)
}

func TestMessageInHookAbortAndStop(t *testing.T) {
	var b Bot
	as := assert.New(t)

	reached := false
	_, _ = b.RegisterMessageInHook("abort", types.HookPriorityHigh, func(types.BotLike, string, *types.Message, *types.MsgContext) types.HookResult {
		return types.HookResultAbort
	})
	_, _ = b.RegisterMessageInHook("after", types.HookPriorityLow, func(types.BotLike, string, *types.Message, *types.MsgContext) types.HookResult {
		reached = true
		return types.HookResultContinue
	})
	as.True(b.runMessageInHooks("adapter", &types.Message{}, &types.MsgContext{}))
	as.False(reached)

	var b2 Bot
	_, _ = b2.RegisterMessageInHook("stop", types.HookPriorityHigh, func(types.BotLike, string, *types.Message, *types.MsgContext) types.HookResult {
		return types.HookResultStop
	})
	as.False(b2.runMessageInHooks("adapter", &types.Message{}, &types.MsgContext{}))
}

func TestDispatchEventRunsHooksInOrder(t *testing.T) {
	var b Bot
	as := assert.New(t)
	var seen []string

	_, err := b.RegisterEventHook("first", types.HookPriorityHigh, func(_ types.BotLike, _ string, evt *types.AdapterEvent) types.HookResult {
		seen = append(seen, "first:"+evt.Type)
		return types.HookResultContinue
	})
	as.NoError(err)
	stopHandle, err := b.RegisterEventHook("stopper", types.HookPriorityNormal, func(types.BotLike, string, *types.AdapterEvent) types.HookResult {
		seen = append(seen, "stopper")
		return types.HookResultStop
	})
	as.NoError(err)
	_, err = b.RegisterEventHook("last", types.HookPriorityLow, func(types.BotLike, string, *types.AdapterEvent) types.HookResult {
		seen = append(seen, "last")
		return types.HookResultContinue
	})
	as.NoError(err)

	b.DispatchEvent("adapter", &types.AdapterEvent{Type: "lifecycle"})
	as.Equal([]string{"first:lifecycle", "stopper"}, seen)

	as.True(b.UnregisterEventHook(stopHandle))
	seen = nil
	b.DispatchEvent("adapter", &types.AdapterEvent{Type: "notice"})
	as.Equal([]string{"first:notice", "last"}, seen)

	b.DispatchEvent("adapter", nil)
}
