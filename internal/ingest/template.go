package ingest

import (
	"fmt"

	"github.com/markethub/notification/internal/notification"
	"github.com/markethub/notification/pkg/event"
)

// Template はイベントから通知のタイトル・本文・優先度を導出する純粋関数。
type Template func(e *event.Event) (title, message string, priority notification.Priority)

// templates はイベント種類からテンプレートへの対応表。
// 新しいイベント種類への対応はこの表への追加だけで完結する。
var templates = map[event.Type]Template{
	event.TypeUserCreated:    userCreatedTemplate,
	event.TypeUserLoggedIn:   userLoggedInTemplate,
	event.TypeFundCreated:    fundCreatedTemplate,
	event.TypeInvestmentMade: investmentMadeTemplate,
	event.TypeSystemAlert:    systemAlertTemplate,
}

// Render はイベントに対応するテンプレートを適用する。
// 未知のイベント種類は拒否せず、汎用テンプレートで変換する。
func Render(e *event.Event) (title, message string, priority notification.Priority) {
	if tmpl, ok := templates[e.EventType]; ok {
		return tmpl(e)
	}
	return defaultTemplate(e)
}

// userCreatedTemplate はアカウント作成イベントをウェルカム通知へ変換する。
func userCreatedTemplate(e *event.Event) (string, string, notification.Priority) {
	title := "Welcome to Marketplace!"
	message := "Your account has been created. Explore available funds and start investing."
	if data, err := event.DecodeData[event.UserCreatedData](e); err == nil && data.FirstName != "" {
		message = fmt.Sprintf("Hi %s, your account has been created. Explore available funds and start investing.", data.FirstName)
	}
	return title, message, notification.PriorityHigh
}

// userLoggedInTemplate はログインイベントをログイン通知へ変換する。
func userLoggedInTemplate(e *event.Event) (string, string, notification.Priority) {
	title := "New Login"
	message := "A new login to your account was detected."
	if data, err := event.DecodeData[event.UserLoggedInData](e); err == nil && data.Timestamp != "" {
		message = fmt.Sprintf("You logged in at %s.", data.Timestamp)
	}
	return title, message, notification.PriorityLow
}

// fundCreatedTemplate はファンド公開イベントを新着ファンド通知へ変換する。
func fundCreatedTemplate(e *event.Event) (string, string, notification.Priority) {
	title := "New Fund Available"
	message := "A new fund is now open for investment."
	if data, err := event.DecodeData[event.FundCreatedData](e); err == nil && data.FundName != "" {
		message = fmt.Sprintf("%s is now open for investment.", data.FundName)
	}
	return title, message, notification.PriorityMedium
}

// investmentMadeTemplate は投資約定イベントを約定通知へ変換する。
func investmentMadeTemplate(e *event.Event) (string, string, notification.Priority) {
	title := "Investment Confirmed"
	message := "Your investment has been confirmed."
	if data, err := event.DecodeData[event.InvestmentMadeData](e); err == nil && data.FundName != "" {
		if data.Amount != "" {
			message = fmt.Sprintf("Your investment of %s in %s has been confirmed.", data.Amount, data.FundName)
		} else {
			message = fmt.Sprintf("Your investment in %s has been confirmed.", data.FundName)
		}
	}
	return title, message, notification.PriorityHigh
}

// systemAlertTemplate は運営通知イベントをそのまま通知へ変換する。
// 運営が指定したタイトルと本文を優先し、欠けている場合は既定値で補う。
func systemAlertTemplate(e *event.Event) (string, string, notification.Priority) {
	title := "System Alert"
	message := "A system alert has been issued."
	if data, err := event.DecodeData[event.SystemAlertData](e); err == nil {
		if data.Title != "" {
			title = data.Title
		}
		if data.Message != "" {
			message = data.Message
		}
	}
	return title, message, notification.PriorityUrgent
}

// defaultTemplate は未知のイベント種類を汎用通知へ変換する。
func defaultTemplate(e *event.Event) (string, string, notification.Priority) {
	title := fmt.Sprintf("Event: %s", e.EventType)
	message := fmt.Sprintf("You received a new %s event.", e.EventType)
	return title, message, notification.PriorityMedium
}
