package types

type CmdExecuteResult struct {
	Matched  bool // 是否是指令
	Solved   bool // 是否响应此指令
	ShowHelp bool
}

type CmdItemInfo struct {
	Name              string
	ShortHelp         string // 短帮助，格式是 .xxx a b // 说明
	Help              string // 长帮助，带换行的较详细说明
	DisabledInPrivate bool   // 私聊不可用

	Solve func(ctx *MsgContext, msg *Message, cmdArgs *CmdArgs) CmdExecuteResult
}

type CmdMapCls map[string]*CmdItemInfo

type ExtInfo struct {
	Name       string   `json:"name"    yaml:"name"`
	Aliases    []string `json:"aliases" yaml:"-"`
	Version    string   `json:"version" yaml:"-"`
	Brief      string   `json:"-"       yaml:"-"`
	Author     string   `json:"-"       yaml:"-"`
	AutoActive bool     `json:"-"       yaml:"-"`

	CmdMap CmdMapCls `json:"-" yaml:"-"` // 指令集合

	OnLoad func() `json:"-" yaml:"-"`
}
