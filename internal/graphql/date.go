package graphql

import (
	"encoding/json"
	"fmt"
	"time"
)

// Date はスキーマのDateスカラー。
type Date struct {
	Time time.Time
}

// NewDate はtime.TimeをDateに変換する。
func NewDate(t time.Time) Date {
	return Date{Time: t}
}

// ImplementsGraphQLType はDateスカラーとして登録するための実装。
func (Date) ImplementsGraphQLType(name string) bool {
	return name == "Date"
}

// UnmarshalGraphQL はRFC 3339文字列またはエポックミリ秒を受け付ける。
func (d *Date) UnmarshalGraphQL(input interface{}) error {
	switch v := input.(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return fmt.Errorf("invalid Date %q: %w", v, err)
		}
		d.Time = t
	case int32:
		d.Time = time.UnixMilli(int64(v))
	case int64:
		d.Time = time.UnixMilli(v)
	case int:
		d.Time = time.UnixMilli(int64(v))
	case float64:
		d.Time = time.UnixMilli(int64(v))
	default:
		return fmt.Errorf("invalid Date input type %T", input)
	}
	return nil
}

// MarshalJSON はUTCのRFC 3339文字列として出力する。
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Time.UTC().Format(time.RFC3339Nano))
}
