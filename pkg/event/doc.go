// Package event はメッセージバスを流れるイベントのスキーマを定義する。
//
// 上流のユーザー・ファンド・取引サービスが発行するイベントを、
// 通知サービスが消費するための共通の型とパース処理を提供する。
// 未知のイベント種類も前方互換のために拒否しない。
package event
