// 通知サービスのエントリポイント。
// メッセージバスのイベントを消費して通知を永続化し、WebSocketで
// 接続中のクライアントへリアルタイム配信する。未読件数はAPIと
// プッシュの両方から参照できる。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/markethub/notification/internal/ingest"
	"github.com/markethub/notification/internal/notification"
	"github.com/markethub/notification/internal/realtime"
)

func main() {
	port := getEnvOr("PORT", "8086")
	dbPath := getEnvOr("DATABASE_PATH", "notification.db")
	busURL := getEnvOr("EVENTBUS_URL", "http://localhost:8090")
	topic := getEnvOr("EVENTBUS_TOPIC", "notifications")

	db, err := notification.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("データベースの初期化に失敗: %v", err)
	}
	defer db.Close()

	store := notification.NewStore(db)
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(store, registry)
	consumer := ingest.NewConsumer(store, dispatcher, busURL, topic)
	reaper := notification.NewReaper(store, time.Hour)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer.Start(ctx)
	defer consumer.Stop()
	reaper.Start(ctx)
	defer reaper.Stop()

	server := notification.NewServer(notification.ServerConfig{
		Port:        port,
		DB:          db,
		Store:       store,
		Pusher:      dispatcher,
		Bus:         consumer,
		Realtime:    dispatcher,
		WSHandler:   realtime.Handler(dispatcher),
		CORSOrigins: corsOrigins(),
	})

	log.Printf("通知サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}

// corsOrigins はCORSを許可するオリジンの一覧を環境変数から取得する。
func corsOrigins() []string {
	value := os.Getenv("CORS_ORIGINS")
	if value == "" {
		return nil
	}

	var origins []string
	for _, origin := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
