package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses はエンティティ展開で新たなタグが現れた場合に繰り返す上限。
const maxSanitizePasses = 4

// TextSanitizerService はユーザー入力のテキストからマークアップを取り除く。
// Todoのタイトルやユーザー名の保存前に使用される。
type TextSanitizerService interface {
	// SanitizeText はHTMLタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// script/styleの中身は捨てる。同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(s string) string
}

// textSanitizer はTextSanitizerServiceの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerServiceを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はプレーンテキストを返す。
// StrictPolicyはテキストをエスケープして返すため、保存用に元の文字へ戻す。
// "&lt;b&gt;" のように展開後にタグになる入力は、変化がなくなるまで繰り返し処理する。
func (s *textSanitizer) SanitizeText(in string) string {
	out := in
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}
