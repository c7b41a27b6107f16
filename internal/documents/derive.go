package documents

import "strings"

const (
	wordsPerMinute = 200
	excerptRunes   = 500
)

// deriveWordCount counts whitespace-separated words.
func deriveWordCount(content string) int64 {
	return int64(len(strings.Fields(content)))
}

// deriveReadTime estimates reading time in whole minutes, never below one.
func deriveReadTime(wordCount int64) int64 {
	minutes := wordCount / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

// deriveExcerpt takes the leading runes of the content for list views.
func deriveExcerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptRunes {
		return content
	}
	return string(runes[:excerptRunes])
}
