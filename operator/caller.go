// Package operator 调用 OneBot 11 管理接口读取群/成员信息，并让机器人周期性地模仿指定用户的头像和群名片
package operator

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	ActionGetGroupList       = "get_group_list"
	ActionGetGroupMemberInfo = "get_group_member_info"
	ActionGetLoginInfo       = "get_login_info"
	ActionSetQQAvatar        = "set_qq_avatar"
	ActionSetGroupCard       = "set_group_card"
	ActionSetQQProfile       = "set_qq_profile"
)

// ActionCaller 外部提供的协议端客户端，返回原始响应。
// 传输失败以 error 返回；业务失败（status != ok）由调用方通过 Normalize 判断。
type ActionCaller interface {
	CallAction(ctx context.Context, action string, params map[string]any) (json.RawMessage, error)
}

// call 发起一次调用并归一化响应，传输错误和业务错误都折叠成 error
func call(ctx context.Context, caller ActionCaller, action string, params map[string]any) (Response, error) {
	if caller == nil {
		return nil, errors.New("当前平台不支持此操作")
	}
	raw, err := caller.CallAction(ctx, action, params)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", action)
	}
	resp := Normalize(raw)
	if err := resp.Err(); err != nil {
		return resp, errors.Wrapf(err, "call %s", action)
	}
	return resp, nil
}
