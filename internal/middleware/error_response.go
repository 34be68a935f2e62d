package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/todogql/internal/model"
)

// GraphQLErrorBody はリゾルバに到達する前に失敗したリクエストへのレスポンス。
// GraphQLクライアントが通常のエラーと同じ形で扱えるよう、errors配列の形式にそろえる。
type GraphQLErrorBody struct {
	Errors []GraphQLError `json:"errors"`
}

// GraphQLError はerrors配列の1要素。
type GraphQLError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// WriteErrorResponse はGraphQL形式でHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(GraphQLErrorBody{
		Errors: []GraphQLError{{
			Message:    apiErr.Message,
			Extensions: apiErr.Extensions(),
		}},
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
