package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// setupStore はテスト用のインメモリ通知ストアを構築するヘルパー関数。
func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// インメモリDBはコネクションごとに独立するため1本に固定する
	db.SetMaxOpenConns(1)

	return NewStore(db)
}

// createTestNotification はテスト用の通知を作成するヘルパー関数。
func createTestNotification(t *testing.T, s *Store, userID, typ, title string) *Notification {
	t.Helper()

	n, err := s.Create(context.Background(), CreateParams{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: "テストメッセージ",
	})
	if err != nil {
		t.Fatalf("テスト用通知の作成に失敗: %v", err)
	}
	return n
}

// TestStoreCreate は通知の作成を検証する。
func TestStoreCreate(t *testing.T) {
	t.Parallel()

	t.Run("IDと作成日時と保持期限が採番されること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		n, err := s.Create(context.Background(), CreateParams{
			UserID:   "user-1",
			Type:     "USER_CREATED",
			Title:    "Welcome to Marketplace!",
			Message:  "ようこそ",
			Priority: PriorityHigh,
			Data:     json.RawMessage(`{"firstName":"Ann"}`),
		})
		if err != nil {
			t.Fatalf("通知の作成に失敗: %v", err)
		}

		if n.ID == "" {
			t.Error("IDが採番されていません")
		}
		if n.Read {
			t.Error("作成直後の通知は未読であるべき")
		}
		if n.CreatedAt.IsZero() {
			t.Error("作成日時が設定されていません")
		}
		if !n.ExpiresAt.After(n.CreatedAt) {
			t.Errorf("保持期限は作成日時より後であるべき: createdAt=%v expiresAt=%v", n.CreatedAt, n.ExpiresAt)
		}
		if got := n.ExpiresAt.Sub(n.CreatedAt); got != RetentionPeriod {
			t.Errorf("保持期間 = %v, want %v", got, RetentionPeriod)
		}
	})

	t.Run("優先度未指定の場合はmediumになること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		n := createTestNotification(t, s, "user-1", "SOMETHING", "タイトル")
		if n.Priority != PriorityMedium {
			t.Errorf("Priority = %q, want %q", n.Priority, PriorityMedium)
		}
	})

	t.Run("必須フィールドが欠けている場合はValidationError", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		tests := []struct {
			name   string
			params CreateParams
			field  string
		}{
			{"userIdなし", CreateParams{Type: "T", Title: "t", Message: "m"}, "userId"},
			{"typeなし", CreateParams{UserID: "u", Title: "t", Message: "m"}, "type"},
			{"titleなし", CreateParams{UserID: "u", Type: "T", Message: "m"}, "title"},
			{"messageなし", CreateParams{UserID: "u", Type: "T", Title: "t"}, "message"},
		}
		for _, tt := range tests {
			_, err := s.Create(context.Background(), tt.params)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("%s: err = %v, want ValidationError", tt.name, err)
				continue
			}
			if vErr.Field != tt.field {
				t.Errorf("%s: Field = %q, want %q", tt.name, vErr.Field, tt.field)
			}
		}

		// 何も書き込まれていないこと
		_, total, err := s.ListByUser(context.Background(), "u", 1, 20, false)
		if err != nil {
			t.Fatalf("一覧取得に失敗: %v", err)
		}
		if total != 0 {
			t.Errorf("通知数 = %d, want 0", total)
		}
	})
}

// TestStoreListByUser は通知一覧の取得を検証する。
func TestStoreListByUser(t *testing.T) {
	t.Parallel()

	t.Run("作成日時の降順で返ること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		// 作成時刻を明示的に進めて順序を固定する
		base := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
		for i := 0; i < 3; i++ {
			tick := base.Add(time.Duration(i) * time.Second)
			s.now = func() time.Time { return tick }
			createTestNotification(t, s, "user-1", "T", fmt.Sprintf("通知%d", i))
		}
		s.now = time.Now

		notifications, total, err := s.ListByUser(context.Background(), "user-1", 1, 20, false)
		if err != nil {
			t.Fatalf("一覧取得に失敗: %v", err)
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		if len(notifications) != 3 {
			t.Fatalf("件数 = %d, want 3", len(notifications))
		}

		// 後から作成した通知が先に返ること
		if notifications[0].Title != "通知2" || notifications[2].Title != "通知0" {
			t.Errorf("順序が不正: got %q, %q, %q",
				notifications[0].Title, notifications[1].Title, notifications[2].Title)
		}
		for i := 0; i < len(notifications)-1; i++ {
			if notifications[i].CreatedAt.Before(notifications[i+1].CreatedAt) {
				t.Errorf("作成日時が降順になっていません: %v < %v",
					notifications[i].CreatedAt, notifications[i+1].CreatedAt)
			}
		}
	})

	t.Run("ページネーションが機能すること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		base := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
		for i := 0; i < 5; i++ {
			tick := base.Add(time.Duration(i) * time.Second)
			s.now = func() time.Time { return tick }
			createTestNotification(t, s, "user-1", "T", fmt.Sprintf("通知%d", i))
		}
		s.now = time.Now

		page1, total, err := s.ListByUser(context.Background(), "user-1", 1, 2, false)
		if err != nil {
			t.Fatalf("1ページ目の取得に失敗: %v", err)
		}
		if total != 5 {
			t.Errorf("total = %d, want 5", total)
		}
		if len(page1) != 2 {
			t.Fatalf("1ページ目の件数 = %d, want 2", len(page1))
		}

		page3, _, err := s.ListByUser(context.Background(), "user-1", 3, 2, false)
		if err != nil {
			t.Fatalf("3ページ目の取得に失敗: %v", err)
		}
		if len(page3) != 1 {
			t.Errorf("3ページ目の件数 = %d, want 1", len(page3))
		}
		if page3[0].Title != "通知0" {
			t.Errorf("最終ページの通知 = %q, want 通知0", page3[0].Title)
		}
	})

	t.Run("unreadOnlyで未読のみ返りCountUnreadと一致すること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		n1 := createTestNotification(t, s, "user-1", "T", "未読")
		_ = n1
		n2 := createTestNotification(t, s, "user-1", "T", "既読予定")
		if _, err := s.MarkRead(context.Background(), n2.ID); err != nil {
			t.Fatalf("既読化に失敗: %v", err)
		}

		unreadList, total, err := s.ListByUser(context.Background(), "user-1", 1, 20, true)
		if err != nil {
			t.Fatalf("未読一覧の取得に失敗: %v", err)
		}
		if total != 1 || len(unreadList) != 1 {
			t.Errorf("未読一覧: total=%d, len=%d, want 1, 1", total, len(unreadList))
		}

		count, err := s.CountUnread(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != total {
			t.Errorf("CountUnread = %d, unreadOnly total = %d で一致すべき", count, total)
		}
	})

	t.Run("別ユーザーの通知は含まれないこと", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		createTestNotification(t, s, "user-1", "T", "user-1の通知")
		createTestNotification(t, s, "user-2", "T", "user-2の通知")

		_, total, err := s.ListByUser(context.Background(), "user-1", 1, 20, false)
		if err != nil {
			t.Fatalf("一覧取得に失敗: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
	})

	t.Run("通知が存在しない場合は空ページが返ること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		notifications, total, err := s.ListByUser(context.Background(), "nobody", 1, 20, false)
		if err != nil {
			t.Fatalf("一覧取得に失敗: %v", err)
		}
		if total != 0 || len(notifications) != 0 {
			t.Errorf("空の結果が返るべき: total=%d, len=%d", total, len(notifications))
		}
	})
}

// TestStoreMarkRead は通知の既読化を検証する。
func TestStoreMarkRead(t *testing.T) {
	t.Parallel()

	t.Run("未読の通知を既読にできること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		n := createTestNotification(t, s, "user-1", "T", "タイトル")
		updated, err := s.MarkRead(context.Background(), n.ID)
		if err != nil {
			t.Fatalf("既読化に失敗: %v", err)
		}
		if !updated.Read {
			t.Error("既読化後もRead=falseのまま")
		}
	})

	t.Run("冪等であること（2回目も成功し未読件数が変わらない）", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		n := createTestNotification(t, s, "user-1", "T", "タイトル")
		createTestNotification(t, s, "user-1", "T", "もう1件")

		if _, err := s.MarkRead(context.Background(), n.ID); err != nil {
			t.Fatalf("1回目の既読化に失敗: %v", err)
		}
		countAfterFirst, err := s.CountUnread(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}

		again, err := s.MarkRead(context.Background(), n.ID)
		if err != nil {
			t.Fatalf("2回目の既読化に失敗: %v", err)
		}
		if !again.Read {
			t.Error("2回目の既読化で状態が変わった")
		}

		countAfterSecond, err := s.CountUnread(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if countAfterFirst != countAfterSecond {
			t.Errorf("2回目の既読化で未読件数が変化: %d -> %d", countAfterFirst, countAfterSecond)
		}
	})

	t.Run("存在しない通知はErrNotFound", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		_, err := s.MarkRead(context.Background(), "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("同一IDへの並行既読化が両方成功すること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		n := createTestNotification(t, s, "user-1", "T", "タイトル")

		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.MarkRead(context.Background(), n.ID)
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Errorf("並行既読化 %d が失敗: %v", i, err)
			}
		}

		count, err := s.CountUnread(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("未読件数 = %d, want 0", count)
		}
	})
}

// TestStoreMarkAllRead は全通知の既読化を検証する。
func TestStoreMarkAllRead(t *testing.T) {
	t.Parallel()

	t.Run("全件既読になり直後の未読件数が0になること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		for i := 0; i < 3; i++ {
			createTestNotification(t, s, "user-1", "T", fmt.Sprintf("通知%d", i))
		}

		modified, err := s.MarkAllRead(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("全既読化に失敗: %v", err)
		}
		if modified != 3 {
			t.Errorf("modified = %d, want 3", modified)
		}

		count, err := s.CountUnread(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("未読件数 = %d, want 0", count)
		}
	})

	t.Run("続けて実行すると2回目は0件になること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		createTestNotification(t, s, "user-1", "T", "通知")

		if _, err := s.MarkAllRead(context.Background(), "user-1"); err != nil {
			t.Fatalf("1回目の全既読化に失敗: %v", err)
		}
		modified, err := s.MarkAllRead(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("2回目の全既読化に失敗: %v", err)
		}
		if modified != 0 {
			t.Errorf("2回目のmodified = %d, want 0", modified)
		}
	})

	t.Run("別ユーザーの通知は既読にならないこと", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		createTestNotification(t, s, "user-1", "T", "user-1の通知")
		createTestNotification(t, s, "user-2", "T", "user-2の通知")

		if _, err := s.MarkAllRead(context.Background(), "user-1"); err != nil {
			t.Fatalf("全既読化に失敗: %v", err)
		}

		count, err := s.CountUnread(context.Background(), "user-2")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("user-2の未読件数 = %d, want 1", count)
		}
	})
}

// TestStoreDelete は通知の削除を検証する。
func TestStoreDelete(t *testing.T) {
	t.Parallel()

	t.Run("削除後は取得できないこと", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		n := createTestNotification(t, s, "user-1", "T", "タイトル")
		if err := s.Delete(context.Background(), n.ID); err != nil {
			t.Fatalf("削除に失敗: %v", err)
		}

		if _, err := s.Get(context.Background(), n.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("削除後のGet err = %v, want ErrNotFound", err)
		}
	})

	t.Run("存在しない通知はErrNotFound", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		if err := s.Delete(context.Background(), "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

// TestStoreStats は通知集計を検証する。
func TestStoreStats(t *testing.T) {
	t.Parallel()

	t.Run("N件作成後のtotalと未読件数がNになること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		const n = 5
		for i := 0; i < n; i++ {
			createTestNotification(t, s, "user-1", "T", fmt.Sprintf("通知%d", i))
		}

		stats, err := s.Stats(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("集計の取得に失敗: %v", err)
		}
		if stats.Total != n {
			t.Errorf("Total = %d, want %d", stats.Total, n)
		}
		if stats.Unread != n {
			t.Errorf("Unread = %d, want %d", stats.Unread, n)
		}

		count, err := s.CountUnread(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != n {
			t.Errorf("CountUnread = %d, want %d", count, n)
		}
	})

	t.Run("種類ごとの内訳が正しいこと", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		createTestNotification(t, s, "user-1", "USER_CREATED", "作成")
		createTestNotification(t, s, "user-1", "FUND_CREATED", "ファンド1")
		n := createTestNotification(t, s, "user-1", "FUND_CREATED", "ファンド2")
		if _, err := s.MarkRead(context.Background(), n.ID); err != nil {
			t.Fatalf("既読化に失敗: %v", err)
		}

		stats, err := s.Stats(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("集計の取得に失敗: %v", err)
		}
		if len(stats.ByType) != 2 {
			t.Fatalf("種類数 = %d, want 2", len(stats.ByType))
		}

		// 件数の多い種類が先に来る
		if stats.ByType[0].Type != "FUND_CREATED" {
			t.Errorf("先頭の種類 = %q, want FUND_CREATED", stats.ByType[0].Type)
		}
		if stats.ByType[0].Count != 2 || stats.ByType[0].Unread != 1 {
			t.Errorf("FUND_CREATED: count=%d unread=%d, want 2, 1",
				stats.ByType[0].Count, stats.ByType[0].Unread)
		}
	})

	t.Run("通知がないユーザーは空の集計になること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		stats, err := s.Stats(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("集計の取得に失敗: %v", err)
		}
		if stats.Total != 0 || stats.Unread != 0 || len(stats.ByType) != 0 {
			t.Errorf("空の集計が返るべき: %+v", stats)
		}
	})
}

// TestStoreExpiry は保持期限の扱いを検証する。
func TestStoreExpiry(t *testing.T) {
	t.Parallel()

	t.Run("期限切れの通知はすべての読み取りから除外されること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return created }
		n := createTestNotification(t, s, "user-1", "T", "期限切れ予定")

		// 保持期限を過ぎた時点に進める
		s.now = func() time.Time { return created.Add(RetentionPeriod + time.Hour) }

		if _, err := s.Get(context.Background(), n.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("期限切れのGet err = %v, want ErrNotFound", err)
		}

		_, total, err := s.ListByUser(context.Background(), "user-1", 1, 20, false)
		if err != nil {
			t.Fatalf("一覧取得に失敗: %v", err)
		}
		if total != 0 {
			t.Errorf("期限切れ通知が一覧に含まれている: total = %d", total)
		}

		count, err := s.CountUnread(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("期限切れ通知が未読件数に含まれている: count = %d", count)
		}

		if _, err := s.MarkRead(context.Background(), n.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("期限切れのMarkRead err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PurgeExpiredで期限切れ通知が物理削除されること", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return created }
		createTestNotification(t, s, "user-1", "T", "期限切れ予定")
		createTestNotification(t, s, "user-1", "T", "もう1件")

		s.now = func() time.Time { return created.Add(RetentionPeriod + time.Hour) }
		purged, err := s.PurgeExpired(context.Background())
		if err != nil {
			t.Fatalf("期限切れ削除に失敗: %v", err)
		}
		if purged != 2 {
			t.Errorf("purged = %d, want 2", purged)
		}

		// 2回目は削除対象がないこと
		purged, err = s.PurgeExpired(context.Background())
		if err != nil {
			t.Fatalf("2回目の期限切れ削除に失敗: %v", err)
		}
		if purged != 0 {
			t.Errorf("2回目のpurged = %d, want 0", purged)
		}
	})

	t.Run("期限内の通知はPurgeExpiredで削除されないこと", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)

		createTestNotification(t, s, "user-1", "T", "期限内")

		purged, err := s.PurgeExpired(context.Background())
		if err != nil {
			t.Fatalf("期限切れ削除に失敗: %v", err)
		}
		if purged != 0 {
			t.Errorf("purged = %d, want 0", purged)
		}
	})
}
