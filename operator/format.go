package operator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const timeLayout = "2006-01-02 15:04:05"

var relTimeMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "刚刚", DivBy: time.Second},
	{D: time.Minute, Format: "%d 秒%s", DivBy: time.Second},
	{D: time.Hour, Format: "%d 分钟%s", DivBy: time.Minute},
	{D: humanize.Day, Format: "%d 小时%s", DivBy: time.Hour},
	{D: humanize.Week, Format: "%d 天%s", DivBy: humanize.Day},
	{D: math.MaxInt64, Format: "%d 周%s", DivBy: humanize.Week},
}

func relTime(then, now time.Time) string {
	return humanize.CustomRelTime(then, now, "前", "后", relTimeMagnitudes)
}

// FormatTimestamp 秒级时间戳，0 或负数为“未知”
func FormatTimestamp(ts int64) string {
	if ts <= 0 {
		return "未知"
	}
	return time.Unix(ts, 0).Format(timeLayout)
}

func FormatGender(sex string) string {
	switch sex {
	case "", "unknown":
		return "❓ 未知"
	case "male":
		return "👨 男"
	case "female":
		return "👩 女"
	default:
		return "❓ " + sex
	}
}

func FormatRole(role string) string {
	switch role {
	case "owner":
		return "群主"
	case "admin":
		return "管理员"
	default:
		return "成员"
	}
}

func orDefault(s, def string) string {
	return lo.Ternary(strings.TrimSpace(s) == "", def, s)
}

// FormatMemberInfo 群成员信息回复
func FormatMemberInfo(info *MemberInfo) string {
	var sb strings.Builder
	sb.WriteString("群成员信息：\n")
	sb.WriteString(fmt.Sprintf("🏢 群号：%d\n", info.GroupID))
	sb.WriteString(fmt.Sprintf("🆔 用户ID：%d\n", info.UserID))
	sb.WriteString(fmt.Sprintf("📛 昵称：%s\n", info.Nickname))
	sb.WriteString(fmt.Sprintf("💳 群名片：%s\n", orDefault(info.Card, "无")))
	sb.WriteString(fmt.Sprintf("👤 性别：%s\n", FormatGender(info.Sex)))
	sb.WriteString(fmt.Sprintf("📅 年龄：%s\n", lo.Ternary(info.Age > 0, strconv.FormatInt(info.Age, 10), "未知")))
	sb.WriteString(fmt.Sprintf("📍 地区：%s\n", orDefault(info.Area, "未知")))
	sb.WriteString(fmt.Sprintf("📌 加入时间：%s\n", FormatTimestamp(info.JoinTime)))
	sb.WriteString(fmt.Sprintf("💬 最后发言时间：%s\n", FormatTimestamp(info.LastSentTime)))
	sb.WriteString(fmt.Sprintf("👑 身份：%s\n", FormatRole(info.Role)))
	sb.WriteString(fmt.Sprintf("🏅 专属头衔：%s\n", orDefault(info.Title, "无")))
	return sb.String()
}

// FormatGroupList 群列表回复
func FormatGroupList(groups []gjson.Result) string {
	lines := lo.Map(groups, func(g gjson.Result, _ int) string {
		return fmt.Sprintf("群号：%s，群名：%s\n", g.Get("group_id").String(), g.Get("group_name").String())
	})
	return fmt.Sprintf("共获取到 %d 个群：\n", len(groups)) + strings.Join(lines, "")
}

// FormatStatus 模仿状态回复
func FormatStatus(st Status, interval time.Duration, now time.Time) string {
	if !st.Active {
		if st.LastExit == StateFailed {
			return "当前没有进行中的模仿，上一次模仿任务异常退出"
		}
		return "当前没有进行中的模仿"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("正在模仿群%d用户%d，每 %d 分钟更新一次\n", st.Target.GroupID, st.Target.UserID, int(interval.Minutes())))
	sb.WriteString(fmt.Sprintf("状态：%s，已执行 %d 轮\n", st.Phase, st.Cycles))
	sb.WriteString(fmt.Sprintf("开始于：%s\n", relTime(st.Started, now)))
	if !st.LastCycle.IsZero() {
		sb.WriteString(fmt.Sprintf("上次检查：%s\n", relTime(st.LastCycle, now)))
	}
	if fp := st.Fingerprint; fp != nil {
		sb.WriteString(fmt.Sprintf("已同步名片：%s\n", orDefault(fp.Card, "无")))
		sb.WriteString(fmt.Sprintf("已同步头像：%s\n", orDefault(fp.AvatarHash, "无")))
	} else {
		sb.WriteString("尚未同步\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
