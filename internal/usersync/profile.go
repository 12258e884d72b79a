// Package usersync はIdPのユーザー情報をローカルのユーザーレコードへ反映する。
package usersync

import (
	"strings"

	"github.com/hitoshi/storefront/internal/model"
)

// SelectEmail は保存するメールアドレスを選ぶ。
// primaryIDに一致するものを優先し、なければ先頭、リストが空なら空文字を返す。
func SelectEmail(addresses []model.ProviderEmail, primaryID string) string {
	if len(addresses) == 0 {
		return ""
	}
	if primaryID != "" {
		for _, a := range addresses {
			if a.ID == primaryID {
				return a.EmailAddress
			}
		}
	}
	return addresses[0].EmailAddress
}

// DisplayName は姓名を半角スペースで連結して表示名を作る。
// 結果が空の場合はメールアドレスの@より前を使う。
func DisplayName(firstName, lastName, email string) string {
	name := strings.TrimSpace(firstName + " " + lastName)
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}

// ProfileFromProviderUser はIdPのユーザー情報からUPSERT用のプロフィールを組み立てる。
// 表示名のフォールバックは選択したメールの元の表記から取り、正規化はメールにのみ適用する。
func ProfileFromProviderUser(u model.ProviderUser) model.UserProfile {
	selected := SelectEmail(u.EmailAddresses, u.PrimaryEmailAddressID)
	return model.UserProfile{
		ExternalID:      u.ID,
		Email:           selected,
		DisplayName:     DisplayName(u.FirstName, u.LastName, selected),
		ProfileImageURL: u.ImageURL,
	}.Normalize()
}
