// Package ingest はメッセージバスのイベントを消費し、通知として永続化する。
//
// バスのトピックをポーリングし、イベント種類ごとのテンプレートで
// タイトル・本文・優先度へ変換してストアに書き込む。書き込みに成功した
// イベントのオフセットのみをコミットするため、処理はat-least-onceとなる。
package ingest
