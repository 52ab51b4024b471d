package domain

import (
	"errors"
	"strings"
)

const (
	LevelStar     = "Star"
	LevelSilver   = "Silver"
	LevelGold     = "Gold"
	LevelPlatinum = "Platinum"
	LevelDiamond  = "Diamond"
)

var ErrUnknownLevel = errors.New("unknown level")

// Levels in ascending order.
var Levels = []string{LevelStar, LevelSilver, LevelGold, LevelPlatinum, LevelDiamond}

// levelQuota is the maximum number of receives per level.
var levelQuota = map[string]int{
	LevelStar:     3,
	LevelSilver:   9,
	LevelGold:     27,
	LevelPlatinum: 81,
	LevelDiamond:  243,
}

// levelAmount is the fixed help amount (rupees) per level. Admins may override it via settings.
var levelAmount = map[string]int64{
	LevelStar:     300,
	LevelSilver:   600,
	LevelGold:     2000,
	LevelPlatinum: 20000,
	LevelDiamond:  200000,
}

// ParseLevel accepts any casing and returns the canonical level name.
func ParseLevel(s string) (string, error) {
	for _, l := range Levels {
		if strings.EqualFold(l, strings.TrimSpace(s)) {
			return l, nil
		}
	}
	return "", ErrUnknownLevel
}

// Quota returns the receive quota for level, or 0 for an unknown level.
func Quota(level string) int {
	return levelQuota[level]
}

// Amount returns the default help amount for level, or 0 for an unknown level.
func Amount(level string) int64 {
	return levelAmount[level]
}

// NextLevel returns the level above, or "" at the top.
func NextLevel(level string) string {
	for i, l := range Levels {
		if l == level && i+1 < len(Levels) {
			return Levels[i+1]
		}
	}
	return ""
}
