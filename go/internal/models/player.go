package models

import (
	"strings"
	"unicode/utf8"

	"github.com/mcdev12/partygames/go/internal/gameerr"
)

const MaxPlayerNameLength = 50

// NormalizePlayerName trims a display name and checks its length.
func NormalizePlayerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", gameerr.Validation("Player name is required")
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameLength {
		return "", gameerr.Validation("Player name too long (max %d characters)", MaxPlayerNameLength)
	}
	return name, nil
}
