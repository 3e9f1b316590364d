package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Summary counts line-level changes between two content snapshots.
type Summary struct {
	AddedLines    int `json:"added_lines"`
	RemovedLines  int `json:"removed_lines"`
	ModifiedLines int `json:"modified_lines"`
	TotalChanges  int `json:"total_changes"`
}

// ModifiedLine pairs the old and new text of a line classified as modified.
type ModifiedLine struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Comparison is a Summary plus the actual line content, for display.
type Comparison struct {
	Summary
	Added    []string       `json:"added"`
	Removed  []string       `json:"removed"`
	Modified []ModifiedLine `json:"modified"`
}

// Stats describes one content snapshot.
type Stats struct {
	WordCount      int `json:"word_count"`
	CharacterCount int `json:"character_count"`
	LineCount      int `json:"line_count"`
}

// Engine computes line-oriented diffs between document snapshots. The diff
// runs in diff-match-patch line mode: each distinct line is mapped to a rune,
// a character diff runs over the mapped text, and the result maps back to
// lines. Where a run of removed lines is immediately followed by a run of
// inserted lines, the two runs are paired positionally and counted as
// modified up to the shorter run's length; the remainder counts as plain
// adds or removes. The heuristic is stable and keeps totals conservative:
// an in-place rewrite of a line is one modification, never an add+remove
// pair, and an unchanged line that merely shifted position stays inside an
// equal run and is not counted at all.
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

func NewEngine() *Engine {
	return &Engine{dmp: diffmatchpatch.New()}
}

// Summarize returns change counts between two snapshots. Deterministic:
// identical inputs always produce identical output.
func (e *Engine) Summarize(oldContent, newContent string) Summary {
	return e.Compare(oldContent, newContent).Summary
}

// Compare returns the change counts plus the added/removed/modified lines.
func (e *Engine) Compare(oldContent, newContent string) Comparison {
	var cmp Comparison
	if oldContent == newContent {
		return cmp
	}

	diffs := e.lineDiffs(oldContent, newContent)

	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			continue

		case diffmatchpatch.DiffDelete:
			removed := splitLines(d.Text)
			var added []string
			// a delete run directly followed by an insert run is a rewrite
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				added = splitLines(diffs[i+1].Text)
				i++
			}

			paired := len(removed)
			if len(added) < paired {
				paired = len(added)
			}
			for j := 0; j < paired; j++ {
				cmp.Modified = append(cmp.Modified, ModifiedLine{Old: removed[j], New: added[j]})
			}
			cmp.Removed = append(cmp.Removed, removed[paired:]...)
			cmp.Added = append(cmp.Added, added[paired:]...)

		case diffmatchpatch.DiffInsert:
			cmp.Added = append(cmp.Added, splitLines(d.Text)...)
		}
	}

	cmp.AddedLines = len(cmp.Added)
	cmp.RemovedLines = len(cmp.Removed)
	cmp.ModifiedLines = len(cmp.Modified)
	cmp.TotalChanges = cmp.AddedLines + cmp.RemovedLines + cmp.ModifiedLines
	return cmp
}

// ContentStats computes per-version content metadata.
func ContentStats(content string) Stats {
	return Stats{
		WordCount:      len(strings.Fields(content)),
		CharacterCount: len([]rune(content)),
		LineCount:      len(splitLines(content)),
	}
}

func (e *Engine) lineDiffs(oldContent, newContent string) []diffmatchpatch.Diff {
	oldChars, newChars, lines := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(oldChars, newChars, false)
	return e.dmp.DiffCharsToLines(diffs, lines)
}

// splitLines splits on newlines without producing a phantom empty line for
// content that ends with a line break.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
