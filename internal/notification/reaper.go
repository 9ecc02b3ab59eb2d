package notification

import (
	"context"
	"log"
	"time"
)

// Reaper は保持期限を過ぎた通知を定期的に物理削除するバックグラウンドプロセス。
// 読み取りクエリは期限切れの通知を常に除外するため、削除の遅延は
// クライアントから観測されない。
type Reaper struct {
	// store は通知ストア。
	store *Store
	// interval は削除処理の実行間隔。
	interval time.Duration
	// cancel はバックグラウンドゴルーチンを停止するためのキャンセル関数。
	cancel context.CancelFunc
}

// NewReaper は新しいReaperを生成する。
func NewReaper(store *Store, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{
		store:    store,
		interval: interval,
	}
}

// Start はバックグラウンドで期限切れ通知の削除を開始する。
// 起動直後に1回実行し、以降はinterval間隔で繰り返す。
func (r *Reaper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		log.Println("Reaper: 期限切れ通知の削除を開始します")
		r.purge(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("Reaper: 削除処理を停止しました")
				return
			case <-ticker.C:
				r.purge(ctx)
			}
		}
	}()
}

// Stop はバックグラウンドの削除処理を停止する。
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// purge は期限切れ通知を1回分削除する。失敗してもログに留め、次回へ持ち越す。
func (r *Reaper) purge(ctx context.Context) {
	purged, err := r.store.PurgeExpired(ctx)
	if err != nil {
		log.Printf("Reaper: 削除エラー: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("Reaper: %d件の期限切れ通知を削除しました", purged)
	}
}
