// Package graphql はGraphQL APIのスキーマとリゾルバーを提供する。
package graphql

import (
	_ "embed"
	"net/http"

	graphqlgo "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

//go:embed schema.graphql
var schemaSDL string

// DefaultMaxDepth はクエリのネスト深さの既定上限。
const DefaultMaxDepth = 10

// NewSchema はリゾルバーを結び付けたスキーマを生成する。
// スキーマとリゾルバーの不整合は起動時のpanicになる。
func NewSchema(resolver *Resolver, maxDepth int, tracer *Tracer) *graphqlgo.Schema {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	opts := []graphqlgo.SchemaOpt{
		graphqlgo.MaxDepth(maxDepth),
	}
	if tracer != nil {
		opts = append(opts, graphqlgo.Tracer(tracer))
	}
	return graphqlgo.MustParseSchema(schemaSDL, resolver, opts...)
}

// NewHandler はPOST /graphql を処理するハンドラーを返す。
func NewHandler(schema *graphqlgo.Schema) http.Handler {
	return &relay.Handler{Schema: schema}
}
