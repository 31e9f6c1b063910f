package services

import "strings"

const (
	DeepLinkPrefix = "online_"
	codeLength     = 6
	codeSpace      = 1_000_000
)

func DeepLinkToken(code string) string {
	return DeepLinkPrefix + code
}

// ParseDeepLinkToken достаёт код комнаты из payload команды /start
func ParseDeepLinkToken(payload string) (string, bool) {
	code, ok := strings.CutPrefix(strings.TrimSpace(payload), DeepLinkPrefix)
	if !ok || !IsRoomCode(code) {
		return "", false
	}
	return code, true
}

func IsRoomCode(s string) bool {
	if len(s) != codeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
