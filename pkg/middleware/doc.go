// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリとCORS設定を含む。認証は上流のゲートウェイが担当するため、
// 通知サービス自体は認証ミドルウェアを持たない。
package middleware
