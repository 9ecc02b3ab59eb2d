package realtime

// サーバーからクライアントへ送るメッセージ種別
const (
	// MessageTypeUnreadCount は未読件数の通知。
	MessageTypeUnreadCount = "unread_count"
	// MessageTypeNewNotification は新着通知の配信。
	MessageTypeNewNotification = "new_notification"
)

// クライアントからサーバーへ送るメッセージ種別
const (
	// MessageTypeJoin はユーザーとしてセッションを登録する。
	MessageTypeJoin = "join"
)

// ServerMessage はサーバーからクライアントへ送るメッセージの外形。
type ServerMessage struct {
	// Type はメッセージ種別。
	Type string `json:"type"`
	// Data はメッセージ種別ごとのペイロード。
	Data any `json:"data"`
}

// ClientMessage はクライアントからサーバーへ送られるメッセージ。
type ClientMessage struct {
	// Type はメッセージ種別。
	Type string `json:"type"`
	// UserID はjoinメッセージで登録するユーザーID。
	UserID string `json:"userId"`
}

// UnreadCountData はunread_countメッセージのペイロード。
type UnreadCountData struct {
	// Count は未読の通知件数。
	Count int64 `json:"count"`
}
