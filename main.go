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

	"github.com/joho/godotenv"

	"minirace/server"
)

// MiniRace 入口：启动 HTTP + WebSocket 服务，并初始化唯一房间
func main() {
	var addr string
	flag.StringVar(&addr, "addr", "", "server listen address, overrides HOST/PORT, e.g. :3001")
	flag.Parse()

	envErr := godotenv.Load()
	cfg, err := server.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if addr == "" {
		addr = cfg.Addr()
	}

	// 使用 zap 日志写入文件（带滚动）并输出到控制台
	if err := server.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer server.SyncLogger()
	if envErr != nil {
		server.Log.Warn("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rm := server.NewRoomManager(cfg)
	rm.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS(rm, cfg))
	// 管理与监控接口
	mux.HandleFunc("/admin/config", server.HandleAdminConfig(rm))
	mux.HandleFunc("/metrics", server.HandleMetrics(rm))
	mux.HandleFunc("/roster", server.HandleRoster(rm))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: server.WithCORS(cfg.Origins(), mux)}

	go func() {
		server.Log.Infof("MiniRace listening on %s; room=%s maxPlayers=%d", addr, cfg.RoomName, cfg.MaxPlayers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）：房间循环随 ctx 关闭所有会话
	<-ctx.Done()
	server.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		server.Log.Errorf("shutdown: %v", err)
	}
	rm.Wait()
}
