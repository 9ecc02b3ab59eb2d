package notification

import (
	"encoding/json"
	"errors"
	"time"
)

// RetentionPeriod は通知の保持期間。作成から30日で期限切れになる。
const RetentionPeriod = 30 * 24 * time.Hour

// ErrNotFound は存在しない（または期限切れの）通知への操作を表す。
var ErrNotFound = errors.New("通知が見つかりません")

// ValidationError は通知作成時の必須フィールド欠落を表す。
// 不正な入力は何も書き込まずに拒否される。
type ValidationError struct {
	// Field は欠落していたフィールド名。
	Field string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return e.Field + "は必須です"
}

// Priority は通知の優先度を表す。イベントの種類から導出される。
type Priority string

const (
	// PriorityLow は低優先度（ログイン通知など）。
	PriorityLow Priority = "low"
	// PriorityMedium は中優先度。未知のイベント種類のデフォルト。
	PriorityMedium Priority = "medium"
	// PriorityHigh は高優先度（アカウント作成、投資約定など）。
	PriorityHigh Priority = "high"
	// PriorityUrgent は緊急（システムアラート）。
	PriorityUrgent Priority = "urgent"
)

// Notification はユーザーごとの永続化された通知レコードを表す。
// 1つのイベントから導出され、既読状態と保持期限を持つ。
type Notification struct {
	// ID は通知の一意識別子（UUID）。作成時に採番され変更されない。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"userId"`
	// Type は通知の種類。発生元イベントの種類をそのまま保持する。
	Type string `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Data は発生元イベントのペイロード。クライアント側の文脈表示用。
	Data json.RawMessage `json:"data,omitempty"`
	// Read は既読状態。falseからtrueへの一方向にのみ遷移する。
	Read bool `json:"read"`
	// Priority は通知の優先度。
	Priority Priority `json:"priority"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"createdAt"`
	// ExpiresAt は保持期限。常にCreatedAtより後になる。
	ExpiresAt time.Time `json:"expiresAt"`
}

// TypeStat は通知種類ごとの集計を表す。
type TypeStat struct {
	// Type は通知の種類。
	Type string `json:"type"`
	// Count はその種類の通知総数。
	Count int64 `json:"count"`
	// Unread はその種類の未読数。
	Unread int64 `json:"unread"`
}

// Stats はユーザー単位の通知集計を表す。呼び出し時点のストアの状態を反映する。
type Stats struct {
	// Total は通知の総数。
	Total int64 `json:"total"`
	// Unread は未読の通知数。
	Unread int64 `json:"unread"`
	// ByType は種類ごとの内訳。
	ByType []TypeStat `json:"byType"`
}
