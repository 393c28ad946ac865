// internal/auth/guest.go
package auth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxNicknameLen bounds nicknames as displayed in lobby listings.
const maxNicknameLen = 24

// NewGuest mints a guest identity. The id is a fresh UUID; the nickname
// is the caller's choice after sanitation, or a generated fallback.
func NewGuest(nickname, avatar string) Identity {
	id := uuid.NewString()
	nickname = sanitizeNickname(nickname)
	if nickname == "" {
		// Deterministic from the id so retries don't shuffle the name.
		nickname = fmt.Sprintf("Guest-%s", strings.ToUpper(id[:4]))
	}
	return Identity{ID: id, Nickname: nickname, Avatar: avatar}
}

// sanitizeNickname trims whitespace and rejects names that are empty,
// overlong, or contain control characters.
func sanitizeNickname(nick string) string {
	nick = strings.TrimSpace(nick)
	if nick == "" || utf8.RuneCountInString(nick) > maxNicknameLen {
		return ""
	}
	for _, r := range nick {
		if r < 0x20 || r == 0x7f {
			return ""
		}
	}
	return nick
}
