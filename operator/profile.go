package operator

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	avatarURLTemplate = "https://thirdqq.qlogo.cn/g?b=sdk&s=640&nk=%d"
	unknownNickname   = "未知"
)

// AvatarURL 用户 640px 头像地址
func AvatarURL(userID int64) string {
	return fmt.Sprintf(avatarURLTemplate, userID)
}

// MemberInfo get_group_member_info 返回的常用字段
type MemberInfo struct {
	GroupID      int64
	UserID       int64
	Nickname     string
	Card         string
	Sex          string
	Age          int64
	Area         string
	JoinTime     int64
	LastSentTime int64
	Level        string
	Role         string
	Title        string
}

func parseMemberInfo(r gjson.Result) (*MemberInfo, bool) {
	if !r.IsObject() || !r.Get("group_id").Exists() || !r.Get("user_id").Exists() {
		return nil, false
	}
	return &MemberInfo{
		GroupID:      r.Get("group_id").Int(),
		UserID:       r.Get("user_id").Int(),
		Nickname:     r.Get("nickname").String(),
		Card:         r.Get("card").String(),
		Sex:          r.Get("sex").String(),
		Age:          r.Get("age").Int(),
		Area:         r.Get("area").String(),
		JoinTime:     r.Get("join_time").Int(),
		LastSentTime: r.Get("last_sent_time").Int(),
		Level:        r.Get("level").String(),
		Role:         r.Get("role").String(),
		Title:        r.Get("title").String(),
	}, true
}

// Profile 一次读取得到的可模仿资料
type Profile struct {
	Nickname  string
	Card      string
	AvatarURL string
}

type ProfileReader struct {
	caller ActionCaller
	// AvatarURLFor 默认 AvatarURL
	AvatarURLFor func(userID int64) string
}

func NewProfileReader(caller ActionCaller) *ProfileReader {
	return &ProfileReader{caller: caller, AvatarURLFor: AvatarURL}
}

// MemberInfo 查询群成员资料
func (r *ProfileReader) MemberInfo(ctx context.Context, groupID, userID int64, noCache bool) (*MemberInfo, error) {
	resp, err := call(ctx, r.caller, ActionGetGroupMemberInfo, map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"no_cache": noCache,
	})
	if err != nil {
		return nil, err
	}
	info, ok := parseMemberInfo(resp.Payload())
	if !ok {
		return nil, errors.Errorf("群成员信息格式错误: %s", abbreviate(resp.Payload().Raw, 200))
	}
	return info, nil
}

// Fetch 读取目标当前资料，任何失败都只记日志并返回 false
func (r *ProfileReader) Fetch(ctx context.Context, target Target) (Profile, bool) {
	resp, err := call(ctx, r.caller, ActionGetGroupMemberInfo, map[string]any{
		"group_id": target.GroupID,
		"user_id":  target.UserID,
		"no_cache": true,
	})
	if err != nil {
		zap.S().Named("operator").Warnf("获取群%d用户%d信息失败: %v", target.GroupID, target.UserID, err)
		return Profile{}, false
	}

	data := resp.Payload()
	if !data.IsObject() {
		zap.S().Named("operator").Warnf("群成员信息格式错误: %s", abbreviate(data.Raw, 200))
		return Profile{}, false
	}

	nickname := unknownNickname
	if v := data.Get("nickname"); v.Exists() {
		nickname = v.String()
	}
	card := data.Get("card").String()
	if strings.TrimSpace(card) == "" {
		card = nickname
	}
	if card == "" {
		return Profile{}, false
	}

	urlFor := r.AvatarURLFor
	if urlFor == nil {
		urlFor = AvatarURL
	}
	return Profile{
		Nickname:  nickname,
		Card:      card,
		AvatarURL: urlFor(target.UserID),
	}, true
}

func abbreviate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
