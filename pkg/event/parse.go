package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField は必須フィールドを欠いたイベントを表す。
var ErrMissingField = errors.New("イベントに必須フィールドがありません")

// Parse はメッセージバスから受信したJSONボディをイベントとして解釈する。
// eventTypeとuserIdは必須。それ以外のフィールドはRawに保持され、
// イベント種類ごとのデータ構造体へDecodeDataでデシリアライズできる。
func Parse(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("イベントのデシリアライズに失敗: %w", err)
	}

	if e.EventType == "" {
		return nil, fmt.Errorf("%w: eventType", ErrMissingField)
	}
	if e.UserID == "" {
		return nil, fmt.Errorf("%w: userId", ErrMissingField)
	}

	e.Raw = append(json.RawMessage(nil), body...)
	return &e, nil
}

// DecodeData はイベントのRawフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Raw, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
