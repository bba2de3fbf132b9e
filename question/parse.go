// Package question turns the raw text of one segment into a structured
// question: identifier, statement and four lettered choices.
package question

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/brunobiangulo/gosimulado/segment"
)

// Stage identifies the parser state that produced a result.
type Stage int

const (
	// StageLineScan walks the lines and switches buffers on choice labels.
	StageLineScan Stage = iota
	// StageBlockFallback recovers choices with one pattern over the whole
	// segment tail, for labels that do not start a line.
	StageBlockFallback
	// StageDone is terminal.
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageLineScan:
		return "line_scan"
	case StageBlockFallback:
		return "block_fallback"
	default:
		return "done"
	}
}

var (
	choiceLabels = [4]*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*a\s*\)\s*`),
		regexp.MustCompile(`(?i)^\s*b\s*\)\s*`),
		regexp.MustCompile(`(?i)^\s*c\s*\)\s*`),
		regexp.MustCompile(`(?i)^\s*d\s*\)\s*`),
	}

	fallbackBlock = regexp.MustCompile(`(?is)a\)\s*(.*?)\s*b\)\s*(.*?)\s*c\)\s*(.*?)\s*d\)\s*(.*)$`)
)

// Parsed is the result of parsing one segment. A choice is empty when it
// could not be extracted.
type Parsed struct {
	Identifier string // bracketed, e.g. "[X1]"
	Number     int    // number printed before the identifier
	Statement  string
	A, B, C, D string
	// Stage is the last stage that ran: StageLineScan when every choice was
	// found by line, StageBlockFallback otherwise.
	Stage Stage
}

// Choices returns the four choices in label order.
func (p Parsed) Choices() [4]string {
	return [4]string{p.A, p.B, p.C, p.D}
}

// Complete reports whether all four choices are non-empty.
func (p Parsed) Complete() bool {
	return p.A != "" && p.B != "" && p.C != "" && p.D != ""
}

func (p *Parsed) setChoice(i int, v string) {
	switch i {
	case 0:
		p.A = v
	case 1:
		p.B = v
	case 2:
		p.C = v
	case 3:
		p.D = v
	}
}

// Parse extracts the fields of one segment's text. It returns false when no
// anchor line is present.
func Parse(text string) (Parsed, bool) {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) != "" {
			lines = append(lines, strings.TrimRight(ln, " \t\r"))
		}
	}

	anchorIdx := -1
	var out Parsed
	var statement []string
	for i, ln := range lines {
		num, id, tail, ok := segment.MatchAnchor(ln)
		if !ok {
			continue
		}
		anchorIdx = i
		out.Identifier = "[" + id + "]"
		out.Number = num
		if tail != "" {
			statement = append(statement, tail)
		}
		break
	}
	if anchorIdx < 0 {
		return Parsed{}, false
	}

	body := lines[anchorIdx+1:]
	state := StageLineScan
	for state != StageDone {
		switch state {
		case StageLineScan:
			var buffers [4][]string
			active := -1
			for _, ln := range body {
				s := strings.TrimSpace(ln)
				if i, rest, ok := matchLabel(s); ok {
					active = i
					buffers[i] = append(buffers[i], rest)
					continue
				}
				if active < 0 {
					statement = append(statement, s)
				} else {
					buffers[active] = append(buffers[active], s)
				}
			}
			out.Statement = Normalize(strings.Join(statement, " "))
			for i, buf := range buffers {
				out.setChoice(i, Normalize(strings.Join(buf, " ")))
			}
			out.Stage = StageLineScan
			if out.Complete() {
				state = StageDone
			} else {
				state = StageBlockFallback
			}

		case StageBlockFallback:
			out.Stage = StageBlockFallback
			if m := fallbackBlock.FindStringSubmatch(strings.Join(body, "\n")); m != nil {
				current := out.Choices()
				for i := range current {
					if current[i] == "" {
						out.setChoice(i, Normalize(m[i+1]))
					}
				}
			}
			state = StageDone
		}
	}

	return out, true
}

// matchLabel reports which choice label, if any, starts s, and returns the
// rest of the line.
func matchLabel(s string) (int, string, bool) {
	for i, re := range choiceLabels {
		if loc := re.FindStringIndex(s); loc != nil {
			return i, s[loc[1]:], true
		}
	}
	return -1, "", false
}

// Normalize composes the text to NFC, collapses runs of whitespace into one
// space and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
