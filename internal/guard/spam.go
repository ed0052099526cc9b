package guard

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlPattern       = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	shortenerPattern = regexp.MustCompile(`(?i)\b(bit\.ly|tinyurl\.com|goo\.gl|t\.co|ow\.ly|is\.gd|buff\.ly|cutt\.ly)/`)
	phrasePattern    = regexp.MustCompile(`(?i)\b(free money|you (have )?won|claim your (prize|reward)|click here|act now|limited time offer|crypto giveaway|wire transfer|double your (money|bitcoin))\b`)
)

const (
	maxURLs          = 3
	maxRepeatedRunes = 10
	minShoutLetters  = 20
)

// DetectSpam reports whether text looks like unsolicited bulk content.
// It is stateless and cheap enough to run on every outbound request.
func DetectSpam(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if shortenerPattern.MatchString(text) || phrasePattern.MatchString(text) {
		return true
	}
	if len(urlPattern.FindAllStringIndex(text, -1)) > maxURLs {
		return true
	}
	return hasLongRun(text) || isShouting(text)
}

func hasLongRun(text string) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
			if run >= maxRepeatedRunes {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

func isShouting(text string) bool {
	letters, upper := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return letters >= minShoutLetters && upper*5 > letters*4
}
