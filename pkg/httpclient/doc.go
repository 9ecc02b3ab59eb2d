// Package httpclient は外部サービスとのHTTP通信を行うクライアントを提供する。
//
// 通知サービスがマーケットプレイスの共有イベントバスからメッセージを
// 取得する際に使用する。JSONのシリアライズ・デシリアライズと
// エラーハンドリングのパターンを統一する。
package httpclient
