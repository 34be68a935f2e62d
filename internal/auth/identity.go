// Package auth はBearerトークンからリクエスト単位の認証コンテキストを導出する。
//
// 処理は JWKSによる署名鍵解決 → トークン検証 → ユーザー情報取得 の順に直列で行い、
// どの段階で失敗しても匿名コンテキストに倒す（fail closed）。
package auth

// IdentityUser は認証済みユーザーの識別情報。
// IDはトークンのsubクレーム、Name/Emailはユーザー情報エンドポイントの値。
type IdentityUser struct {
	ID    string
	Name  string
	Email string
}

// Identity はリクエストごとの認証コンテキスト。
// 生成後は変更できず、リクエスト終了とともに破棄される。
type Identity struct {
	user *IdentityUser
}

// Anonymous は未認証のIdentityを返す。
func Anonymous() Identity {
	return Identity{}
}

// Authenticated は認証済みユーザーのIdentityを返す。
func Authenticated(user IdentityUser) Identity {
	return Identity{user: &user}
}

// User は認証済みユーザーのコピーを返す。匿名の場合はfalseを返す。
func (i Identity) User() (IdentityUser, bool) {
	if i.user == nil {
		return IdentityUser{}, false
	}
	return *i.user, true
}

// IsAuthenticated は認証済みかどうかを返す。
func (i Identity) IsAuthenticated() bool {
	return i.user != nil
}

// UserID は認証済みユーザーのIDを返す。匿名の場合は空文字を返す。
func (i Identity) UserID() string {
	if i.user == nil {
		return ""
	}
	return i.user.ID
}
