package main

// QQ 模仿插件的 OneBot11 入口

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tidwall/buntdb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sealdice/qqoperator/adapters"
	"github.com/sealdice/qqoperator/bot"
	"github.com/sealdice/qqoperator/bot/types"
	"github.com/sealdice/qqoperator/config"
	"github.com/sealdice/qqoperator/operator"
)

type ob11Callback struct {
	bot *bot.Bot
}

func (cb *ob11Callback) OnError(err error) {
	zap.S().Named("adapter").Warnf("OnError: %v", err)
}

func (cb *ob11Callback) OnMessageReceived(info *adapters.MessageReceivedInfo) {
	if info == nil || info.Message == nil {
		return
	}
	// 对话会在指令里等待下一条消息，必须异步执行
	go cb.bot.Execute("ob11", info.Message)
}

func (cb *ob11Callback) OnEvent(evt *types.AdapterEvent) {
	if evt == nil || evt.Type == "heartbeat" {
		return
	}
	cb.bot.DispatchEvent("ob11", evt)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level),
	}
	if cfg.File != "" {
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEnc),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
			}),
			level,
		))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func openStore(path string) (*buntdb.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return buntdb.Open(path)
}

func main() {
	fmt.Printf("QQ Operator (OB11) v%s\n", types.VERSION.String())

	cfgPath := os.Getenv("QQOP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	log := logger.Sugar()

	db, err := openStore(cfg.DataPath)
	if err != nil {
		log.Fatalf("打开数据文件 %s 失败: %v", cfg.DataPath, err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := bot.NewBot(cfg.CommandPrefix...)
	conn := &adapters.PlatformAdapterOB11{
		WSReverseURL:  cfg.OB11.WSReverseURL,
		WSForwardAddr: cfg.OB11.WSForwardAddr,
		AccessToken:   cfg.OB11.AccessToken,
		Secret:        cfg.OB11.Secret,
	}
	conn.SetCallback(&ob11Callback{bot: b})
	b.CallbackForSendMsg.Store("ob11", func(msg *types.MsgToReply) {
		if msg == nil {
			return
		}
		conn.SendReply(msg)
	})

	lifecycle := operator.NewLifecycle(conn, operator.NewBuntStore(db), operator.Options{
		Interval:              cfg.Interval(),
		AvatarTimeout:         cfg.AvatarWait(),
		MutationRatePerMinute: cfg.MutationRatePerMinute,
	})
	plugin := operator.NewPlugin(lifecycle, cfg)
	if err := plugin.Register(b); err != nil {
		log.Fatalf("注册插件失败: %v", err)
	}

	if err := conn.Serve(ctx); err != nil {
		log.Fatalf("启动适配器失败: %v", err)
	}

	log.Info("等待消息中... 使用 Ctrl+C 退出")
	<-ctx.Done()

	plugin.Close()
	conn.Close()
}
