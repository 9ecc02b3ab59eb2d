package notification

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/markethub/notification/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// timeLayout は時刻をDB内で保持する固定幅のUTCフォーマット。
// 固定幅のため文字列比較がそのまま時刻順になる。
const timeLayout = "2006-01-02 15:04:05.000000000"

// OpenDB はSQLiteデータベースを開き、スキーマを適用する。
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(db, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

// Store は通知レコードの永続化を担う。通知のライフサイクル
// （作成・既読化・削除・期限切れ）を単独で所有する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateParams は通知作成の入力。
type CreateParams struct {
	// UserID は通知先のユーザーID。必須。
	UserID string
	// Type は通知の種類。必須。
	Type string
	// Title は通知のタイトル。必須。
	Title string
	// Message は通知メッセージ。必須。
	Message string
	// Priority は優先度。未指定ならmedium。
	Priority Priority
	// Data は発生元イベントのペイロード。省略可。
	Data json.RawMessage
}

// Create は通知を作成する。IDと作成日時・保持期限はここで採番する。
// 必須フィールドが欠けている場合はValidationErrorを返し、何も書き込まない。
func (s *Store) Create(ctx context.Context, params CreateParams) (*Notification, error) {
	switch {
	case params.UserID == "":
		return nil, &ValidationError{Field: "userId"}
	case params.Type == "":
		return nil, &ValidationError{Field: "type"}
	case params.Title == "":
		return nil, &ValidationError{Field: "title"}
	case params.Message == "":
		return nil, &ValidationError{Field: "message"}
	}

	priority := params.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	now := s.now().UTC()
	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    params.UserID,
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		Data:      params.Data,
		Read:      false,
		Priority:  priority,
		CreatedAt: now,
		ExpiresAt: now.Add(RetentionPeriod),
	}

	var data any
	if len(n.Data) > 0 {
		data = string(n.Data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, read, priority, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, data, string(n.Priority),
		n.CreatedAt.Format(timeLayout), n.ExpiresAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("通知の作成に失敗: %w", err)
	}
	return n, nil
}

// Get は指定IDの通知を取得する。期限切れの通知はErrNotFoundとして扱う。
func (s *Store) Get(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, message, data, read, priority, created_at, expires_at
		FROM notifications
		WHERE id = ? AND expires_at > ?`,
		id, s.now().UTC().Format(timeLayout),
	)
	return scanNotification(row)
}

// ListByUser はユーザーの通知を作成日時の降順で取得する。
// 同時に、フィルタ条件に一致する総件数を返す。結果が空でもエラーにはならない。
func (s *Store) ListByUser(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) ([]Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	nowStr := s.now().UTC().Format(timeLayout)
	where := "user_id = ? AND expires_at > ?"
	args := []any{userID, nowStr}
	if unreadOnly {
		where += " AND read = 0"
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("通知件数の取得に失敗: %w", err)
	}

	// 作成日時の同値はIDの降順で安定させる
	query := `
		SELECT id, user_id, type, title, message, data, read, priority, created_at, expires_at
		FROM notifications
		WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	notifications := make([]Notification, 0, pageSize)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("通知一覧の読み取りに失敗: %w", err)
	}
	return notifications, total, nil
}

// CountUnread はユーザーの未読通知数を返す。
// ListByUserのunreadOnly指定と常に同じ母集合を数える。
func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = ? AND read = 0 AND expires_at > ?`,
		userID, s.now().UTC().Format(timeLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("未読件数の取得に失敗: %w", err)
	}
	return count, nil
}

// MarkRead は指定IDの通知を既読にする。冪等であり、既読の通知に対して
// 呼び出しても成功し、変更のないレコードを返す。存在しない場合はErrNotFound。
func (s *Store) MarkRead(ctx context.Context, id string) (*Notification, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1
		WHERE id = ? AND expires_at > ?`,
		id, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("通知の既読化に失敗: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// MarkAllRead はユーザーの未読通知をすべて既読にし、変更した件数を返す。
// 冪等であり、続けて2回実行すると2回目は0を返す。
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1
		WHERE user_id = ? AND read = 0 AND expires_at > ?`,
		userID, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("全通知の既読化に失敗: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return affected, nil
}

// Delete は指定IDの通知を削除する。存在しない場合はErrNotFound。
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE id = ? AND expires_at > ?`,
		id, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("通知の削除に失敗: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats はユーザーの通知集計を返す。キャッシュせず、呼び出し時点の状態を反映する。
func (s *Store) Stats(ctx context.Context, userID string) (*Stats, error) {
	nowStr := s.now().UTC().Format(timeLayout)

	stats := &Stats{ByType: []TypeStat{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0)
		FROM notifications
		WHERE user_id = ? AND expires_at > ?`,
		userID, nowStr,
	).Scan(&stats.Total, &stats.Unread)
	if err != nil {
		return nil, fmt.Errorf("通知集計の取得に失敗: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*), COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0)
		FROM notifications
		WHERE user_id = ? AND expires_at > ?
		GROUP BY type
		ORDER BY COUNT(*) DESC, type ASC`,
		userID, nowStr,
	)
	if err != nil {
		return nil, fmt.Errorf("種類別集計の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ts TypeStat
		if err := rows.Scan(&ts.Type, &ts.Count, &ts.Unread); err != nil {
			return nil, fmt.Errorf("種類別集計の読み取りに失敗: %w", err)
		}
		stats.ByType = append(stats.ByType, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("種類別集計の読み取りに失敗: %w", err)
	}
	return stats, nil
}

// PurgeExpired は保持期限を過ぎた通知を物理削除し、削除件数を返す。
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE expires_at <= ?",
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れ通知の削除に失敗: %w", err)
	}
	return result.RowsAffected()
}

// rowScanner はsql.Rowとsql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanNotification は1行を通知レコードに変換する。
func scanNotification(row rowScanner) (*Notification, error) {
	var (
		n         Notification
		data      sql.NullString
		read      int64
		priority  string
		createdAt string
		expiresAt string
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
		&data, &read, &priority, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("通知行の読み取りに失敗: %w", err)
	}

	if data.Valid {
		n.Data = json.RawMessage(data.String)
	}
	n.Read = read != 0
	n.Priority = Priority(priority)

	if n.CreatedAt, err = time.ParseInLocation(timeLayout, createdAt, time.UTC); err != nil {
		return nil, fmt.Errorf("作成日時のパースに失敗: %w", err)
	}
	if n.ExpiresAt, err = time.ParseInLocation(timeLayout, expiresAt, time.UTC); err != nil {
		return nil, fmt.Errorf("保持期限のパースに失敗: %w", err)
	}
	return &n, nil
}
