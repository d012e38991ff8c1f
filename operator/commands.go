package operator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sealdice/qqoperator/bot"
	"github.com/sealdice/qqoperator/bot/types"
	"github.com/sealdice/qqoperator/utils"
)

var affirmativeReplies = []string{"是", "确认", "确定", "好", "y", "yes"}

func (p *Plugin) extInfo() *types.ExtInfo {
	theExt := &types.ExtInfo{
		Name:       "qqoperator",
		Aliases:    []string{"qq操作"},
		Version:    types.VERSION.String(),
		Brief:      "【仅QQ】调用QQ接口来实现QQ群操作管理等行为",
		Author:     "SealDice-Team",
		AutoActive: true,
	}

	cmdMap := types.CmdMapCls{}

	cmdGroupList := &types.CmdItemInfo{
		Name:      "获取群列表",
		ShortHelp: "/获取群列表 // 列出机器人加入的群",
		Solve: func(ctx *types.MsgContext, msg *types.Message, cmdArgs *types.CmdArgs) types.CmdExecuteResult {
			groups, err := p.lifecycle.GroupList(ctx.Context())
			if err != nil {
				bot.ReplyToSender(ctx, msg, "获取群列表失败："+failureText(err))
				return types.CmdExecuteResult{Matched: true, Solved: true}
			}
			bot.ReplyToSender(ctx, msg, FormatGroupList(groups))
			return types.CmdExecuteResult{Matched: true, Solved: true}
		},
	}

	helpMemberInfo := "/获取群成员信息 <群号> <用户ID> [no_cache] // 查询群成员资料，no_cache 为 true/1/yes 时不使用缓存"
	cmdMemberInfo := &types.CmdItemInfo{
		Name:      "获取群成员信息",
		ShortHelp: helpMemberInfo,
		Help:      "获取群成员信息:\n" + helpMemberInfo,
		Solve: func(ctx *types.MsgContext, msg *types.Message, cmdArgs *types.CmdArgs) types.CmdExecuteResult {
			if len(cmdArgs.Args) < 2 {
				bot.ReplyToSender(ctx, msg, "参数不足，请使用：/获取群成员信息 <群号> <用户ID>")
				return types.CmdExecuteResult{Matched: true, Solved: true}
			}
			groupID, err1 := strconv.ParseInt(cmdArgs.GetArgN(1), 10, 64)
			userID, err2 := strconv.ParseInt(cmdArgs.GetArgN(2), 10, 64)
			if err1 != nil || err2 != nil {
				bot.ReplyToSender(ctx, msg, "参数错误，请输入正确的数字类型群号和用户ID")
				return types.CmdExecuteResult{Matched: true, Solved: true}
			}
			noCache := cmdArgs.IsArgEqual(3, "true", "1", "yes")

			info, err := p.lifecycle.Reader().MemberInfo(ctx.Context(), groupID, userID, noCache)
			if err != nil {
				bot.ReplyToSender(ctx, msg, "获取群成员信息失败："+failureText(err))
				return types.CmdExecuteResult{Matched: true, Solved: true}
			}
			bot.ReplyToSender(ctx, msg, FormatMemberInfo(info))
			return types.CmdExecuteResult{Matched: true, Solved: true}
		},
	}

	helpImitate := "/模仿 <@用户|QQ号> // 周期性地把机器人的头像和群名片改成和目标一致"
	cmdImitate := &types.CmdItemInfo{
		Name:              "模仿",
		ShortHelp:         helpImitate,
		Help:              "模仿:\n" + helpImitate + "\n已在模仿其他人时会先询问是否替换",
		DisabledInPrivate: true,
		Solve:             p.solveImitate,
	}

	cmdStopImitate := &types.CmdItemInfo{
		Name:      "停止模仿",
		ShortHelp: "/停止模仿 // 停止当前模仿任务",
		Solve: func(ctx *types.MsgContext, msg *types.Message, cmdArgs *types.CmdArgs) types.CmdExecuteResult {
			p.lifecycle.Stop()
			bot.ReplyToSender(ctx, msg, "已停止模仿，并清空了配置中的模仿目标")
			return types.CmdExecuteResult{Matched: true, Solved: true}
		},
	}

	cmdImitateStatus := &types.CmdItemInfo{
		Name:      "模仿状态",
		ShortHelp: "/模仿状态 // 查看当前模仿任务",
		Solve: func(ctx *types.MsgContext, msg *types.Message, cmdArgs *types.CmdArgs) types.CmdExecuteResult {
			text := FormatStatus(p.lifecycle.Status(), p.lifecycle.Interval(), p.lifecycle.opts.Clock.Now())
			bot.ReplyToSender(ctx, msg, text)
			return types.CmdExecuteResult{Matched: true, Solved: true}
		},
	}

	cmdAvatar := &types.CmdItemInfo{
		Name:      "更新头像",
		ShortHelp: "/更新头像 [图片] // 把机器人头像设为随指令发送或之后发送的图片",
		Solve:     p.solveAvatar,
	}

	helpAvatarURL := "/更新头像链接 <链接> // 把机器人头像设为链接指向的图片"
	cmdAvatarURL := &types.CmdItemInfo{
		Name:      "更新头像链接",
		ShortHelp: helpAvatarURL,
		Help:      "更新头像链接:\n" + helpAvatarURL,
		Solve: func(ctx *types.MsgContext, msg *types.Message, cmdArgs *types.CmdArgs) types.CmdExecuteResult {
			url := cmdArgs.CleanArgs
			if url == "" {
				return types.CmdExecuteResult{Matched: true, Solved: true, ShowHelp: true}
			}
			bot.ReplyToSender(ctx, msg, p.applyAvatar(ctx.Context(), url))
			return types.CmdExecuteResult{Matched: true, Solved: true}
		},
	}

	helpNickname := "/更新昵称 <昵称> // 修改机器人的QQ昵称"
	cmdNickname := &types.CmdItemInfo{
		Name:      "更新昵称",
		ShortHelp: helpNickname,
		Help:      "更新昵称:\n" + helpNickname,
		Solve: func(ctx *types.MsgContext, msg *types.Message, cmdArgs *types.CmdArgs) types.CmdExecuteResult {
			nickname := cmdArgs.CleanArgs
			if nickname == "" {
				return types.CmdExecuteResult{Matched: true, Solved: true, ShowHelp: true}
			}
			if err := p.lifecycle.Mutator().SetNickname(ctx.Context(), nickname); err != nil {
				bot.ReplyToSender(ctx, msg, "昵称更新失败："+failureText(err))
				return types.CmdExecuteResult{Matched: true, Solved: true}
			}
			bot.ReplyToSender(ctx, msg, "昵称已更新为："+nickname)
			return types.CmdExecuteResult{Matched: true, Solved: true}
		},
	}

	cmdMap["获取群列表"] = cmdGroupList
	cmdMap["grouplist"] = cmdGroupList
	cmdMap["获取群成员信息"] = cmdMemberInfo
	cmdMap["memberinfo"] = cmdMemberInfo
	cmdMap["模仿"] = cmdImitate
	cmdMap["imitate"] = cmdImitate
	cmdMap["停止模仿"] = cmdStopImitate
	cmdMap["unimitate"] = cmdStopImitate
	cmdMap["模仿状态"] = cmdImitateStatus
	cmdMap["imitatestatus"] = cmdImitateStatus
	cmdMap["更新头像"] = cmdAvatar
	cmdMap["avatar"] = cmdAvatar
	cmdMap["更新头像链接"] = cmdAvatarURL
	cmdMap["avatarurl"] = cmdAvatarURL
	cmdMap["更新昵称"] = cmdNickname
	cmdMap["nickname"] = cmdNickname

	theExt.CmdMap = cmdMap
	return theExt
}

func (p *Plugin) solveImitate(ctx *types.MsgContext, msg *types.Message, cmdArgs *types.CmdArgs) types.CmdExecuteResult {
	groupID, err := utils.ParseQQID(msg.GroupID)
	if !msg.IsGroup() || err != nil {
		bot.ReplyToSender(ctx, msg, "请在群聊中使用此命令")
		return types.CmdExecuteResult{Matched: true, Solved: true}
	}

	var userID int64
	if len(cmdArgs.Mentions) > 0 {
		userID, _ = utils.ParseQQID(cmdArgs.Mentions[0])
	}
	if userID == 0 {
		userID, _ = utils.ParseQQID(cmdArgs.GetArgN(1))
	}
	if userID == 0 {
		bot.ReplyToSender(ctx, msg, "请@需要模仿的用户，或在命令后跟上用户ID")
		return types.CmdExecuteResult{Matched: true, Solved: true}
	}

	target := Target{GroupID: groupID, UserID: userID}
	origin := &Origin{}
	origin.BotID, _ = utils.ParseQQID(msg.SelfID)

	res, err := p.lifecycle.Replace(ctx.Context(), target, origin, p.confirmer(ctx, msg))
	minutes := int(p.lifecycle.Interval().Minutes())
	current, _ := p.lifecycle.Active()
	var text string
	switch {
	case errors.Is(err, ErrConfirmTimeout):
		text = fmt.Sprintf("等待确认超时，继续模仿用户 %d", current.UserID)
	case err != nil:
		text = "模仿失败：" + failureText(err)
	case res == ReplaceStarted, res == ReplaceReplaced:
		text = fmt.Sprintf("开始模仿用户 %d，每 %d 分钟更新一次", userID, minutes)
	case res == ReplaceUnchanged:
		text = fmt.Sprintf("已在模仿用户 %d", userID)
	default:
		text = fmt.Sprintf("已取消，继续模仿用户 %d", current.UserID)
	}
	bot.ReplyToSender(ctx, msg, text)
	return types.CmdExecuteResult{Matched: true, Solved: true}
}

// confirmer 向发起者提问，并等待其下一条消息作为答复
func (p *Plugin) confirmer(ctx *types.MsgContext, msg *types.Message) Confirmer {
	return func(c context.Context, current, next Target) (bool, error) {
		waiter, err := ctx.Bot.ExpectNextMessage(bot.SameSender(msg))
		if err != nil {
			return false, err
		}
		defer waiter.Close()

		wait := p.cfg.ConfirmWait()
		bot.ReplyToSender(ctx, msg, fmt.Sprintf("当前正在模仿群%d的用户 %d，是否替换为群%d的用户 %d？请在%d秒内回复“是”或“否”",
			current.GroupID, current.UserID, next.GroupID, next.UserID, int(wait.Seconds())))

		answer, err := waiter.Wait(c, wait)
		if errors.Is(err, bot.ErrWaitTimeout) {
			return false, ErrConfirmTimeout
		}
		if err != nil {
			return false, err
		}
		return isAffirmative(answer.Segments.ToText()), nil
	}
}

func isAffirmative(text string) bool {
	text = strings.TrimSpace(text)
	for _, s := range affirmativeReplies {
		if strings.EqualFold(text, s) {
			return true
		}
	}
	return false
}

func (p *Plugin) solveAvatar(ctx *types.MsgContext, msg *types.Message, cmdArgs *types.CmdArgs) types.CmdExecuteResult {
	images := msg.Segments.Images()
	if len(images) == 0 {
		waiter, err := ctx.Bot.ExpectNextMessage(bot.SameSender(msg))
		if err != nil {
			bot.ReplyToSender(ctx, msg, "头像更新失败："+err.Error())
			return types.CmdExecuteResult{Matched: true, Solved: true}
		}
		wait := p.cfg.ConfirmWait()
		bot.ReplyToSender(ctx, msg, fmt.Sprintf("请在%d秒内发送要设置的头像图片", int(wait.Seconds())))
		next, err := waiter.Wait(ctx.Context(), wait)
		if err != nil {
			bot.ReplyToSender(ctx, msg, "未收到图片，已取消")
			return types.CmdExecuteResult{Matched: true, Solved: true}
		}
		images = next.Segments.Images()
	}
	if len(images) == 0 || images[0].Source() == "" {
		bot.ReplyToSender(ctx, msg, "未收到图片，已取消")
		return types.CmdExecuteResult{Matched: true, Solved: true}
	}

	bot.ReplyToSender(ctx, msg, p.applyAvatar(ctx.Context(), images[0].Source()))
	return types.CmdExecuteResult{Matched: true, Solved: true}
}

// applyAvatar 网络地址先检查是不是图片，下载失败时交给协议端处理
func (p *Plugin) applyAvatar(ctx context.Context, file string) string {
	if strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://") {
		mime, err := p.probe.ProbeImage(ctx, file)
		switch {
		case err != nil:
			zap.S().Named("operator").Warnf("检查头像图片失败: %v", err)
		case !IsImage(mime):
			return fmt.Sprintf("发送的文件不是图片（%s）", mime.String())
		}
	}
	if err := p.lifecycle.Mutator().SetAvatar(ctx, file); err != nil {
		return "头像更新失败：" + failureText(err)
	}
	return "头像更新成功"
}

func failureText(err error) string {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return err.Error()
}
