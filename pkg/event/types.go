package event

import "encoding/json"

// Type はメッセージバスを流れるイベントの種類を表す。
type Type string

const (
	// TypeUserCreated はユーザーアカウントが作成されたことを表す。
	TypeUserCreated Type = "USER_CREATED"
	// TypeUserLoggedIn はユーザーがログインしたことを表す。
	TypeUserLoggedIn Type = "USER_LOGGED_IN"
	// TypeFundCreated は新しいファンドが公開されたことを表す。
	TypeFundCreated Type = "FUND_CREATED"
	// TypeInvestmentMade は投資が約定したことを表す。
	TypeInvestmentMade Type = "INVESTMENT_MADE"
	// TypeSystemAlert は運営からのシステム通知を表す。
	TypeSystemAlert Type = "SYSTEM_ALERT"
)

// Event はメッセージバスから受信する不変のイベントレコードを表す。
// 上流サービス（ユーザー・ファンド・取引）が発行し、通知サービスが消費する。
type Event struct {
	// EventType はイベントの種類。未知の種類も拒否せず受け入れる。
	EventType Type `json:"eventType"`
	// UserID は通知先のユーザーID。
	UserID string `json:"userId"`
	// Raw は受信したJSONボディ全体。通知のdataフィールドへそのままコピーする。
	Raw json.RawMessage `json:"-"`
}

// UserCreatedData はUSER_CREATEDイベントのデータ。
type UserCreatedData struct {
	// FirstName はユーザーの名。ウェルカムメッセージに使用する。
	FirstName string `json:"firstName"`
}

// UserLoggedInData はUSER_LOGGED_INイベントのデータ。
type UserLoggedInData struct {
	// Timestamp はログイン日時の文字列表現。
	Timestamp string `json:"timestamp"`
}

// FundCreatedData はFUND_CREATEDイベントのデータ。
type FundCreatedData struct {
	// FundID は公開されたファンドのID。
	FundID string `json:"fundId"`
	// FundName は公開されたファンドの名称。
	FundName string `json:"fundName"`
}

// InvestmentMadeData はINVESTMENT_MADEイベントのデータ。
type InvestmentMadeData struct {
	// FundName は投資先ファンドの名称。
	FundName string `json:"fundName"`
	// Amount は投資額の文字列表現。
	Amount string `json:"amount"`
}

// SystemAlertData はSYSTEM_ALERTイベントのデータ。
type SystemAlertData struct {
	// Title は運営が指定した通知タイトル。
	Title string `json:"title"`
	// Message は運営が指定した通知本文。
	Message string `json:"message"`
}
