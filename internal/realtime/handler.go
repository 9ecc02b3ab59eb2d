package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader はHTTP接続をWebSocketへアップグレードする。
// オリジン判定はCORSミドルウェアと同様にデプロイ構成へ委ねる。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler はWebSocketエンドポイントのGinハンドラを返す。
// 接続後にjoinメッセージを受け取るとセッションをユーザーへ紐づけ、
// 切断時には登録簿から除去する。
func Handler(dispatcher *Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Realtime: WebSocketアップグレードに失敗しました: %v", err)
			return
		}

		sess := NewSession(conn)
		go sess.writePump()
		readPump(c.Request.Context(), dispatcher, sess)
	}
}

// readPump はクライアントからのメッセージを処理し、切断を検知する。
func readPump(ctx context.Context, dispatcher *Dispatcher, sess *Session) {
	defer func() {
		dispatcher.HandleLeave(sess)
		sess.Close()
	}()

	sess.conn.SetReadLimit(4096)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Realtime: WebSocket読み取りエラー: %v", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("Realtime: 不正なメッセージを受信しました: %v", err)
			continue
		}

		switch msg.Type {
		case MessageTypeJoin:
			if msg.UserID == "" {
				log.Printf("Realtime: userIdのないjoinメッセージを無視します")
				continue
			}
			dispatcher.HandleJoin(ctx, sess, msg.UserID)
		default:
			log.Printf("Realtime: 未知のメッセージ種別を無視します: type=%s", msg.Type)
		}
	}
}
