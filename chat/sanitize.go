package chat

import "strings"

const emojiRunLimit = 3

// SanitizeResponse reduces runs of three or more consecutive emoji to the
// first emoji of the run. Variation selectors and joiners attached to an
// emoji travel with it.
func SanitizeResponse(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))

	i := 0
	for i < len(runes) {
		if !isEmojiStart(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}

		// Collect the whole emoji run, tracking where each emoji begins so a
		// collapsed run keeps its first emoji intact.
		start := i
		count := 0
		firstEnd := -1
		for i < len(runes) && (isEmojiStart(runes[i]) || isEmojiJoiner(runes[i])) {
			// Skin tone modifiers sit inside the pictographic block but
			// extend the previous emoji instead of starting a new one.
			if isEmojiStart(runes[i]) && !isEmojiJoiner(runes[i]) {
				count++
				if count == 2 && firstEnd < 0 {
					firstEnd = i
				}
			}
			i++
		}
		if count >= emojiRunLimit {
			if firstEnd < 0 {
				firstEnd = i
			}
			b.WriteString(string(runes[start:firstEnd]))
		} else {
			b.WriteString(string(runes[start:i]))
		}
	}
	return b.String()
}

// isEmojiStart reports whether r begins an emoji. The ranges cover the
// pictographic blocks, misc symbols, dingbats and regional indicators.
func isEmojiStart(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r == 0x2B50 || r == 0x2B55:
		return true
	}
	return false
}

// isEmojiJoiner reports whether r extends the preceding emoji rather than
// starting a new one.
func isEmojiJoiner(r rune) bool {
	return r == 0xFE0F || r == 0x200D || (r >= 0x1F3FB && r <= 0x1F3FF)
}
