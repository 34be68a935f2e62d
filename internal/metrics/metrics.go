// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/todogql/internal/auth"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやGraphQLのトレーサーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordGraphQLRequest(duration time.Duration, failed bool)
}

// Collector はPrometheusメトリクスを収集する実装。
// auth.Observerも実装し、認証パイプラインの結果を記録する。
type Collector struct {
	identityResolutions *prometheus.CounterVec
	identityLatency     prometheus.Histogram
	jwksFetch           *prometheus.CounterVec
	jwksLatency         prometheus.Histogram
	httpStatus          *prometheus.CounterVec
	graphqlRequests     *prometheus.CounterVec
	graphqlLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		identityResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todogql_identity_resolutions_total",
			Help: "認証コンテキスト導出の結果別の合計数",
		}, []string{"outcome"}),
		identityLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todogql_identity_resolution_seconds",
			Help:    "認証コンテキスト導出のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		jwksFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todogql_jwks_fetch_total",
			Help: "JWKS取得の結果別の合計数",
		}, []string{"result"}),
		jwksLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todogql_jwks_fetch_latency_seconds",
			Help:    "JWKS取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todogql_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		graphqlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todogql_graphql_requests_total",
			Help: "GraphQLリクエストの結果別の合計数",
		}, []string{"result"}),
		graphqlLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todogql_graphql_latency_seconds",
			Help:    "GraphQLリクエストの実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	// 0件の結果もスクレイプ結果に出るようにラベルを初期化する
	for _, outcome := range auth.Outcomes() {
		c.identityResolutions.WithLabelValues(string(outcome))
	}

	reg.MustRegister(
		c.identityResolutions,
		c.identityLatency,
		c.jwksFetch,
		c.jwksLatency,
		c.httpStatus,
		c.graphqlRequests,
		c.graphqlLatency,
	)

	return c
}

// IdentityResolved は認証コンテキスト導出の結果を記録する。
func (c *Collector) IdentityResolved(_ context.Context, outcome auth.Outcome, elapsed time.Duration, _ error) {
	c.identityResolutions.WithLabelValues(string(outcome)).Inc()
	c.identityLatency.Observe(elapsed.Seconds())
}

// KeySetFetched はJWKS取得の結果を記録する。
func (c *Collector) KeySetFetched(_ context.Context, elapsed time.Duration, err error) {
	c.jwksFetch.WithLabelValues(resultLabel(err != nil)).Inc()
	c.jwksLatency.Observe(elapsed.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordGraphQLRequest はGraphQLリクエスト1件の実行結果を記録する。
func (c *Collector) RecordGraphQLRequest(duration time.Duration, failed bool) {
	c.graphqlRequests.WithLabelValues(resultLabel(failed)).Inc()
	c.graphqlLatency.Observe(duration.Seconds())
}

func resultLabel(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ auth.Observer    = (*Collector)(nil)
)
