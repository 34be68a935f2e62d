package auth

import (
	"context"
	"log/slog"
	"time"
)

// Outcome は認証コンテキスト導出の終了状態。
type Outcome string

const (
	OutcomeNoToken              Outcome = "no_token"
	OutcomeMalformedHeader      Outcome = "malformed_header"
	OutcomeKeyLookupFailed      Outcome = "key_lookup_failed"
	OutcomeTokenInvalid         Outcome = "token_invalid"
	OutcomeUserInfoFailed       Outcome = "userinfo_failed"
	OutcomeUserInfoShapeInvalid Outcome = "userinfo_shape_invalid"
	OutcomeAuthenticated        Outcome = "authenticated"
)

// Outcomes は全てのOutcomeを返す。メトリクスのラベル初期化に使う。
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeNoToken,
		OutcomeMalformedHeader,
		OutcomeKeyLookupFailed,
		OutcomeTokenInvalid,
		OutcomeUserInfoFailed,
		OutcomeUserInfoShapeInvalid,
		OutcomeAuthenticated,
	}
}

// Observer は認証パイプラインのイベントを受け取るシンク。
// パイプライン本体は特定のログ基盤やメトリクス基盤に依存しない。
type Observer interface {
	// IdentityResolved はリクエスト1件の認証コンテキスト導出が終わるたびに呼ばれる。
	// errは失敗時の内部理由で、呼び出し元には伝播しない。
	IdentityResolved(ctx context.Context, outcome Outcome, elapsed time.Duration, err error)
	// KeySetFetched はJWKSエンドポイントへのリクエストが終わるたびに呼ばれる。
	KeySetFetched(ctx context.Context, elapsed time.Duration, err error)
}

// NopObserver は何もしないObserver。
type NopObserver struct{}

func (NopObserver) IdentityResolved(context.Context, Outcome, time.Duration, error) {}
func (NopObserver) KeySetFetched(context.Context, time.Duration, error)             {}

// Observers は複数のObserverへイベントを配信する。
type Observers []Observer

// IdentityResolved は全てのObserverに配信する。
func (o Observers) IdentityResolved(ctx context.Context, outcome Outcome, elapsed time.Duration, err error) {
	for _, obs := range o {
		obs.IdentityResolved(ctx, outcome, elapsed, err)
	}
}

// KeySetFetched は全てのObserverに配信する。
func (o Observers) KeySetFetched(ctx context.Context, elapsed time.Duration, err error) {
	for _, obs := range o {
		obs.KeySetFetched(ctx, elapsed, err)
	}
}

// LogObserver はイベントをslogに構造化ログとして出力する。
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver はLogObserverを生成する。
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// IdentityResolved は成功・トークンなしをDEBUG、失敗をWARNで記録する。
func (o *LogObserver) IdentityResolved(ctx context.Context, outcome Outcome, elapsed time.Duration, err error) {
	attrs := []any{
		slog.String("outcome", string(outcome)),
		slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		o.logger.WarnContext(ctx, "identity resolution failed, continuing as anonymous", attrs...)
		return
	}
	o.logger.DebugContext(ctx, "identity resolved", attrs...)
}

// KeySetFetched はJWKS取得の結果を記録する。
func (o *LogObserver) KeySetFetched(ctx context.Context, elapsed time.Duration, err error) {
	attrs := []any{
		slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		o.logger.ErrorContext(ctx, "jwks fetch failed", attrs...)
		return
	}
	o.logger.InfoContext(ctx, "jwks fetched", attrs...)
}

var (
	_ Observer = NopObserver{}
	_ Observer = Observers(nil)
	_ Observer = (*LogObserver)(nil)
)
