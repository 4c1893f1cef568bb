package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"

	"tx-guard-sol/internal/config"
	"tx-guard-sol/internal/svc"
	"tx-guard-sol/pkg/logger"
)

var configFile = flag.String("f", "etc/guard.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.GuardConfig
	conf.MustLoad(*configFile, &c)

	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		logx.Errorf("日志初始化失败: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		logger.Errorf("服务上下文初始化失败: %v", err)
		os.Exit(1)
	}
	defer serviceContext.Close()

	logx.Infof("guard engine ready: mode=%s, tolerance=%s",
		serviceContext.Engine.Policy().Mode, serviceContext.Engine.Policy().RiskTolerance)

	// 校验入口由上层执行系统以库方式调用（serviceContext.Engine.Validate）；
	// 进程本身只负责持有资源并等待退出信号。
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logx.Info("Shutting down guard service...")
}
