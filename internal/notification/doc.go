// Package notification は通知サービスの中核を実装する。
//
// メッセージバス由来のイベントから生成された通知レコードを
// SQLiteに永続化し、一覧・未読件数・統計のクエリと既読・削除の
// 変更操作を提供する。保持期限を過ぎた通知はすべての読み取りから
// 除外され、バックグラウンドのReaperが物理削除する。
package notification
