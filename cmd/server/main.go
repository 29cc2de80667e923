// Package main 是 HTTP 服务的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat-go/internal/app"
	"docchat-go/internal/config"
	"docchat-go/internal/router"
	"docchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func main() {
	defaultConfig := os.Getenv("DOCCHAT_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "./configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfig, "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储、模型客户端和服务
	initCtx, cancelInit := context.WithTimeout(context.Background(), 60*time.Second)
	a, err := app.New(initCtx, cfg, app.Overrides{})
	cancelInit()
	if err != nil {
		log.Fatal("初始化依赖失败", err)
	}

	// 4. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := router.New(a)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	a.Close(ctx)
	log.Info("服务已优雅关闭")
}
