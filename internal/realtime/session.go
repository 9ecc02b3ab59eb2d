package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait はWebSocket書き込みのタイムアウト。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのpong応答を待つ時間。
	pongWait = 60 * time.Second
	// pingPeriod はpingを送る間隔。pongWaitより短くする必要がある。
	pingPeriod = (pongWait * 9) / 10
	// sendBufferSize は送信キューの容量。満杯時のメッセージは破棄される。
	sendBufferSize = 16
)

// Session は1つのWebSocket接続を表す。
// 送信はバッファ付きキュー経由で行い、遅いクライアントが他の配信を
// ブロックしないようにする。
type Session struct {
	// conn はWebSocket接続。
	conn *websocket.Conn
	// send は書き込みポンプへ渡す送信キュー。
	send chan []byte
	// done はセッション終了の合図。
	done chan struct{}
	// mu はuserIDとclosedを保護する。
	mu sync.Mutex
	// userID はjoin済みの場合のユーザーID。未joinの場合は空。
	userID string
	// closed はClose済みかどうか。
	closed bool
}

// NewSession は新しいセッションを生成する。
func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// UserID はjoin済みのユーザーIDを返す。未joinの場合は空文字列。
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// setUserID はjoin時にユーザーIDを設定する。
func (s *Session) setUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// Push はメッセージを送信キューへ追加する。
// キューが満杯の場合やセッションが終了済みの場合、メッセージは破棄される。
func (s *Session) Push(msgType string, data any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// 破棄が確定しているメッセージはエンコードしない
	if len(s.send) == cap(s.send) {
		log.Printf("Realtime: 送信キューが満杯のためメッセージを破棄しました: type=%s", msgType)
		return
	}

	payload, err := json.Marshal(ServerMessage{Type: msgType, Data: data})
	if err != nil {
		log.Printf("Realtime: メッセージのエンコードに失敗しました: %v", err)
		return
	}

	select {
	case s.send <- payload:
	default:
		log.Printf("Realtime: 送信キューが満杯のためメッセージを破棄しました: type=%s", msgType)
	}
}

// Close はセッションを終了し、書き込みポンプを停止する。
// 2回目以降の呼び出しは何もしない。
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	if s.conn != nil {
		s.conn.Close()
	}
}

// writePump は送信キューのメッセージを接続へ書き込み、定期的にpingを送る。
// 接続ごとに1つのゴルーチンで実行する。
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
