package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/markethub/notification/internal/notification"
	"github.com/markethub/notification/pkg/event"
	"github.com/markethub/notification/pkg/httpclient"
)

// pollLimit は1回のポーリングで取得するメッセージの最大数。
const pollLimit = 100

// Deliverer は永続化された通知を接続中のセッションへ配信する。
type Deliverer interface {
	// Deliver は通知を対象ユーザーの全セッションへ配信する。
	Deliver(ctx context.Context, n *notification.Notification)
}

// Consumer はメッセージバスのトピックをポーリングし、通知として永続化する
// バックグラウンドプロセス。ストアへの書き込みに成功したメッセージの
// オフセットのみをコミットする。
type Consumer struct {
	// store は通知の書き込み先。
	store *notification.Store
	// deliverer は永続化後のリアルタイム配信先。nilの場合配信しない。
	deliverer Deliverer
	// client はメッセージバスとの通信用HTTPクライアント。
	client *httpclient.Client
	// topic は購読するトピック名。
	topic string
	// interval はポーリング間隔。失敗時の再試行間隔を兼ねる。
	interval time.Duration
	// mu はoffsetとhealthyへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// offset は次に取得するメッセージのオフセット。
	offset int64
	// healthy は直近のポーリングが成功したかどうか。
	healthy bool
	// cancel はバックグラウンドゴルーチンを停止するためのキャンセル関数。
	cancel context.CancelFunc
}

// NewConsumer は新しいConsumerを生成する。
// busURL はメッセージバスのベースURL（例: "http://localhost:8090"）。
func NewConsumer(store *notification.Store, deliverer Deliverer, busURL, topic string) *Consumer {
	return &Consumer{
		store:     store,
		deliverer: deliverer,
		client:    httpclient.New(busURL),
		topic:     topic,
		interval:  2 * time.Second,
	}
}

// Start はバックグラウンドでメッセージバスのポーリングを開始する。
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		log.Printf("Consumer: トピック%sのポーリングを開始します", c.topic)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("Consumer: ポーリングを停止しました")
				return
			case <-ticker.C:
				if err := c.poll(ctx); err != nil {
					log.Printf("Consumer: ポーリングエラー: %v", err)
				}
			}
		}
	}()
}

// Stop はバックグラウンドのポーリングを停止する。
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Healthy は直近のポーリングが成功していればtrueを返す。
// notification.BusHealthインターフェースを実装する。
func (c *Consumer) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

// Offset は次に取得するメッセージのオフセットを返す。
func (c *Consumer) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// busMessage はメッセージバスAPIから返されるメッセージのJSON構造。
type busMessage struct {
	// Offset はトピック内でのメッセージの位置。
	Offset int64 `json:"offset"`
	// Body はメッセージ本文（イベントのJSON）。
	Body json.RawMessage `json:"body"`
}

// poll はメッセージバスから新しいメッセージを取得して通知へ変換する。
// 解釈できないメッセージと不正な入力はログに残してスキップする。
// ストアへの書き込みに失敗した場合は、そのメッセージのオフセットを
// コミットせずにバッチを打ち切り、次回のポーリングで再試行する。
func (c *Consumer) poll(ctx context.Context) error {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()

	path := fmt.Sprintf("/api/v1/topics/%s/messages?offset=%d&limit=%d", url.PathEscape(c.topic), offset, pollLimit)

	var messages []busMessage
	if err := c.client.GetJSON(ctx, path, &messages); err != nil {
		c.setHealthy(false)
		return fmt.Errorf("メッセージバスからの取得に失敗: %w", err)
	}
	c.setHealthy(true)

	if len(messages) == 0 {
		return nil
	}

	next := offset
	var processed int
	var batchErr error
	for _, msg := range messages {
		ev, err := event.Parse(msg.Body)
		if err != nil {
			log.Printf("Consumer: 解釈できないメッセージをスキップします (offset=%d): %v", msg.Offset, err)
			next = msg.Offset + 1
			continue
		}

		title, message, priority := Render(ev)
		n, err := c.store.Create(ctx, notification.CreateParams{
			UserID:   ev.UserID,
			Type:     string(ev.EventType),
			Title:    title,
			Message:  message,
			Priority: priority,
			Data:     ev.Raw,
		})
		if err != nil {
			var verr *notification.ValidationError
			if errors.As(err, &verr) {
				// 再試行しても成功しない入力はスキップして先へ進む
				log.Printf("Consumer: 不正なイベントをスキップします (offset=%d, type=%s): %v", msg.Offset, ev.EventType, err)
				next = msg.Offset + 1
				continue
			}
			batchErr = fmt.Errorf("通知の書き込みに失敗 (offset=%d, type=%s): %w", msg.Offset, ev.EventType, err)
			break
		}

		next = msg.Offset + 1
		processed++

		if c.deliverer != nil {
			c.deliverer.Deliver(ctx, n)
		}
	}

	c.mu.Lock()
	c.offset = next
	c.mu.Unlock()

	if processed > 0 {
		log.Printf("Consumer: %d件のメッセージを処理しました", processed)
	}
	return batchErr
}

// setHealthy は直近のポーリング結果を記録する。
func (c *Consumer) setHealthy(healthy bool) {
	c.mu.Lock()
	c.healthy = healthy
	c.mu.Unlock()
}
