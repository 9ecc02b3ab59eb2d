package notification

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/markethub/notification/pkg/middleware"
)

// UnreadPusher は未読件数の更新を接続中のセッションへ送る。
// 既読化・削除のたびにプッシュとポーリングの見え方を一致させるために呼ばれる。
type UnreadPusher interface {
	// RefreshUnread はユーザーの未読件数を再計算して全セッションへ送る。
	RefreshUnread(userID string)
}

// BusHealth はイベントバス消費側の健全性を報告する。
type BusHealth interface {
	// Healthy は直近のポーリングが成功していればtrueを返す。
	Healthy() bool
}

// RealtimeStatus はリアルタイムチャネルの状態を報告する。
type RealtimeStatus interface {
	// ConnectedClients は現在接続中のセッション数を返す。
	ConnectedClients() int
}

// ServerConfig はServerの構成。
type ServerConfig struct {
	// Port はサーバーのリッスンポート。
	Port string
	// DB はヘルスチェックに使用するデータベース接続。
	DB *sql.DB
	// Store は通知ストア。
	Store *Store
	// Pusher は未読件数のプッシュ先。nilの場合プッシュしない。
	Pusher UnreadPusher
	// Bus はイベントバス消費側の健全性ソース。省略可。
	Bus BusHealth
	// Realtime はリアルタイムチャネルの状態ソース。省略可。
	Realtime RealtimeStatus
	// WSHandler はGET /wsに登録するWebSocketハンドラ。省略可。
	WSHandler gin.HandlerFunc
	// CORSOrigins はCORSを許可するオリジン。空の場合CORSミドルウェアを適用しない。
	CORSOrigins []string
}

// Server は通知サービスのHTTPサーバー。
// ストアに対する読み取り中心のAPIと、既読・削除の変更APIを提供する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store は通知ストア。
	store *Store
	// db はヘルスチェック用のデータベース接続。
	db *sql.DB
	// pusher は未読件数のプッシュ先。
	pusher UnreadPusher
	// bus はイベントバス消費側の健全性ソース。
	bus BusHealth
	// realtime はリアルタイムチャネルの状態ソース。
	realtime RealtimeStatus
}

// NewServer は新しい通知APIサーバーを生成する。
func NewServer(cfg ServerConfig) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	if len(cfg.CORSOrigins) > 0 {
		router.Use(middleware.CORS(cfg.CORSOrigins))
	}

	s := &Server{
		router:   router,
		port:     cfg.Port,
		store:    cfg.Store,
		db:       cfg.DB,
		pusher:   cfg.Pusher,
		bus:      cfg.Bus,
		realtime: cfg.Realtime,
	}
	s.setupRoutes(cfg.WSHandler)
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(wsHandler gin.HandlerFunc) {
	api := s.router.Group("/api")
	{
		notifications := api.Group("/notifications")
		{
			// ユーザーの通知一覧取得（ページネーション・未読フィルタ付き）
			notifications.GET("/:id", s.handleList())
			// ユーザーの通知集計取得
			notifications.GET("/:id/stats", s.handleStats())
			// 通知を既読にする
			notifications.PATCH("/:id/read", s.handleMarkRead())
			// ユーザーの全通知を既読にする
			notifications.PATCH("/:id/read-all", s.handleMarkAllRead())
			// 通知を削除する
			notifications.DELETE("/:id", s.handleDelete())
		}
	}

	if wsHandler != nil {
		// リアルタイム配信チャネル
		s.router.GET("/ws", wsHandler)
	}

	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
}

// handleHealth はサービス全体の状態を返すハンドラ。
// ストア・バス・リアルタイムチャネルの状態と接続中クライアント数を含む。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"

		storeStatus := "ok"
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			storeStatus = "unavailable"
			status = "degraded"
		}

		busStatus := "unknown"
		if s.bus != nil {
			if s.bus.Healthy() {
				busStatus = "ok"
			} else {
				busStatus = "degraded"
			}
		}

		realtimeStatus := "unknown"
		connected := 0
		if s.realtime != nil {
			realtimeStatus = "ok"
			connected = s.realtime.ConnectedClients()
		}

		c.JSON(http.StatusOK, gin.H{
			"status":           status,
			"store":            storeStatus,
			"bus":              busStatus,
			"realtime":         realtimeStatus,
			"connectedClients": connected,
		})
	}
}

// handleList はユーザーの通知一覧を返すハンドラ。
// page・limit・unreadOnlyクエリパラメータを受け付け、未読件数も併せて返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		unreadOnly := c.Query("unreadOnly") == "true"
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		ctx := c.Request.Context()
		notifications, total, err := s.store.ListByUser(ctx, userID, page, limit, unreadOnly)
		if err != nil {
			log.Printf("通知一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			return
		}

		unread, err := s.store.CountUnread(ctx, userID)
		if err != nil {
			log.Printf("未読件数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読件数の取得に失敗しました"})
			return
		}

		pages := (total + int64(limit) - 1) / int64(limit)
		c.JSON(http.StatusOK, gin.H{
			"notifications": notifications,
			"pagination": gin.H{
				"page":  page,
				"limit": limit,
				"total": total,
				"pages": pages,
			},
			"unreadCount": unread,
		})
	}
}

// handleStats はユーザーの通知集計を返すハンドラ。
func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		stats, err := s.store.Stats(c.Request.Context(), userID)
		if err != nil {
			log.Printf("通知集計取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知集計の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"overview": gin.H{
				"total":  stats.Total,
				"unread": stats.Unread,
			},
			"byType": stats.ByType,
		})
	}
}

// handleMarkRead は指定された通知を既読にするハンドラ。
// 既読済みの通知に対しても成功を返す（冪等）。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		notificationID := c.Param("id")
		ctx := c.Request.Context()

		n, err := s.store.MarkRead(ctx, notificationID)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		}
		if err != nil {
			log.Printf("通知既読処理エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			return
		}

		unread, err := s.store.CountUnread(ctx, n.UserID)
		if err != nil {
			log.Printf("未読件数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読件数の取得に失敗しました"})
			return
		}

		s.refreshUnread(n.UserID)
		c.JSON(http.StatusOK, gin.H{
			"notification": n,
			"unreadCount":  unread,
		})
	}
}

// handleMarkAllRead はユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		modified, err := s.store.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			log.Printf("全通知既読処理エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			return
		}

		s.refreshUnread(userID)
		c.JSON(http.StatusOK, gin.H{
			"modifiedCount": modified,
			"unreadCount":   0,
		})
	}
}

// handleDelete は指定された通知を削除するハンドラ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		notificationID := c.Param("id")
		ctx := c.Request.Context()

		// 削除後に未読件数を返すため、所有者を先に特定する
		n, err := s.store.Get(ctx, notificationID)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		}
		if err != nil {
			log.Printf("通知取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
			return
		}

		if err := s.store.Delete(ctx, notificationID); err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
				return
			}
			log.Printf("通知削除エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の削除に失敗しました"})
			return
		}

		unread, err := s.store.CountUnread(ctx, n.UserID)
		if err != nil {
			log.Printf("未読件数取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読件数の取得に失敗しました"})
			return
		}

		s.refreshUnread(n.UserID)
		c.JSON(http.StatusOK, gin.H{"unreadCount": unread})
	}
}

// refreshUnread は未読件数の更新を接続中セッションへ送る。
// プッシュの失敗はAPIレスポンスに影響しない。
func (s *Server) refreshUnread(userID string) {
	if s.pusher != nil {
		s.pusher.RefreshUnread(userID)
	}
}

// Handler はテストや埋め込み用途のためにルーターをhttp.Handlerとして公開する。
func (s *Server) Handler() http.Handler {
	return s.router
}
