package realtime

import (
	"context"
	"log"

	"github.com/markethub/notification/internal/notification"
)

// Dispatcher は通知ストアの内容を接続中のセッションへ反映する。
// notification.UnreadPusherを実装し、既読・削除APIからの未読件数更新も担う。
type Dispatcher struct {
	// store は未読件数の再計算に使う通知ストア。
	store *notification.Store
	// registry は接続中セッションの登録簿。
	registry *Registry
}

// NewDispatcher は新しいディスパッチャを生成する。
func NewDispatcher(store *notification.Store, registry *Registry) *Dispatcher {
	return &Dispatcher{
		store:    store,
		registry: registry,
	}
}

// HandleJoin はセッションをユーザーに紐づけ、現在の未読件数を送る。
// 切断中に溜まった通知の件数を接続直後にクライアントへ伝える。
func (d *Dispatcher) HandleJoin(ctx context.Context, sess *Session, userID string) {
	d.registry.Join(userID, sess)

	count, err := d.store.CountUnread(ctx, userID)
	if err != nil {
		log.Printf("Dispatcher: 未読件数の取得に失敗しました: userID=%s, %v", userID, err)
		return
	}
	sess.Push(MessageTypeUnreadCount, UnreadCountData{Count: count})
}

// HandleLeave はセッションを登録簿から除去する。
func (d *Dispatcher) HandleLeave(sess *Session) {
	d.registry.Leave(sess)
}

// Deliver は新着通知を対象ユーザーの全セッションへ配信し、
// 続けて最新の未読件数を送る。接続中のセッションがなければ何もしない。
func (d *Dispatcher) Deliver(ctx context.Context, n *notification.Notification) {
	sessions := d.registry.SessionsFor(n.UserID)
	if len(sessions) == 0 {
		return
	}

	count, err := d.store.CountUnread(ctx, n.UserID)
	if err != nil {
		log.Printf("Dispatcher: 未読件数の取得に失敗しました: userID=%s, %v", n.UserID, err)
		count = -1
	}

	for _, sess := range sessions {
		sess.Push(MessageTypeNewNotification, n)
		if count >= 0 {
			sess.Push(MessageTypeUnreadCount, UnreadCountData{Count: count})
		}
	}
}

// RefreshUnread はユーザーの未読件数を再計算し、全セッションへ送る。
// notification.UnreadPusherインターフェースを実装する。
func (d *Dispatcher) RefreshUnread(userID string) {
	sessions := d.registry.SessionsFor(userID)
	if len(sessions) == 0 {
		return
	}

	count, err := d.store.CountUnread(context.Background(), userID)
	if err != nil {
		log.Printf("Dispatcher: 未読件数の取得に失敗しました: userID=%s, %v", userID, err)
		return
	}

	for _, sess := range sessions {
		sess.Push(MessageTypeUnreadCount, UnreadCountData{Count: count})
	}
}

// ConnectedClients は接続中のセッション数を返す。
// notification.RealtimeStatusインターフェースを実装する。
func (d *Dispatcher) ConnectedClients() int {
	return d.registry.ConnectedClients()
}
