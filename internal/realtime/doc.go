// Package realtime は接続中のユーザーセッションへ通知をプッシュ配信する。
//
// WebSocketセッションの登録簿（Registry）と、通知ストアの内容をセッションへ
// 反映するディスパッチャ（Dispatcher）を提供する。配信はベストエフォートで、
// 切断中のユーザーへの通知はストアに残り、再接続時の未読件数に反映される。
package realtime
