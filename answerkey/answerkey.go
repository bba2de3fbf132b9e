// Package answerkey reads the answer key printed at the end of an exam
// document.
package answerkey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultHeading matches the heading that opens one exam's key, capturing
// the exam number.
const DefaultHeading = `(?i)CEA:\s*SIMULADO\s*\((\d+)\)`

var pairPattern = regexp.MustCompile(`(\d{1,2})\.\s*([ABCD])`)

// Table maps exam number to local question number to answer letter.
type Table map[int]map[int]string

// Lookup returns the answer for a question, or "" when the key has no entry.
func (t Table) Lookup(exam, local int) string {
	return t[exam][local]
}

// Len returns the total number of answers in the table.
func (t Table) Len() int {
	n := 0
	for _, m := range t {
		n += len(m)
	}
	return n
}

// Extractor scans lines for exam headings and answer pairs.
type Extractor struct {
	heading *regexp.Regexp
}

// New returns an extractor for the given heading pattern. The pattern's
// first capture group must be the exam number. An empty pattern selects
// DefaultHeading.
func New(heading string) (*Extractor, error) {
	if heading == "" {
		heading = DefaultHeading
	}
	re, err := regexp.Compile(heading)
	if err != nil {
		return nil, fmt.Errorf("compiling answer key heading: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("answer key heading %q has no capture group", heading)
	}
	return &Extractor{heading: re}, nil
}

// Extract builds the table from the document's lines. A heading sets the
// current exam; every "<number>.<letter>" pair on that line and the lines
// after it is recorded for that exam, later pairs replacing earlier ones.
// Pairs seen before any heading are ignored.
func (e *Extractor) Extract(lines []string) Table {
	table := make(Table)
	current := 0

	for _, line := range lines {
		if m := e.heading.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				current = n
				if _, ok := table[current]; !ok {
					table[current] = make(map[int]string)
				}
			}
		}
		if current == 0 {
			continue
		}
		for _, p := range pairPattern.FindAllStringSubmatch(line, -1) {
			num, _ := strconv.Atoi(p[1])
			table[current][num] = strings.ToUpper(p[2])
		}
	}
	return table
}

// Extract runs the default extractor over lines.
func Extract(lines []string) Table {
	e, _ := New("")
	return e.Extract(lines)
}
