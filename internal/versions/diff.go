package versions

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffStats counts content movement between two versions under a
// unified-diff line model: a line present only in the new content counts
// every one of its characters and words as added, a line present only in
// the old content counts as removed. Edited lines therefore contribute on
// both sides; there is no partial-line credit.
type DiffStats struct {
	CharsAdded   int64
	CharsRemoved int64
	WordsAdded   int64
	WordsRemoved int64
}

func computeDiffStats(oldContent, newContent string) DiffStats {
	if oldContent == newContent {
		return DiffStats{}
	}

	dmp := diffmatchpatch.New()
	oldRunes, newRunes, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(oldRunes, newRunes, false), lineArray)

	var stats DiffStats
	for _, diff := range diffs {
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			for _, line := range splitLines(diff.Text) {
				stats.CharsAdded += int64(len(line))
				stats.WordsAdded += int64(len(strings.Fields(line)))
			}
		case diffmatchpatch.DiffDelete:
			for _, line := range splitLines(diff.Text) {
				stats.CharsRemoved += int64(len(line))
				stats.WordsRemoved += int64(len(strings.Fields(line)))
			}
		}
	}
	return stats
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// countWords counts whitespace-separated words; used for the document's
// derived word count as well as diff accounting.
func countWords(content string) int64 {
	return int64(len(strings.Fields(content)))
}
