// Package segment locates question anchors in a positioned document and
// splits the document into the spatial ranges each question occupies.
package segment

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/brunobiangulo/gosimulado/parser"
)

// AnchorPattern matches the first line of a question: a one or two digit
// number, a bracketed identifier and the start of the statement.
var AnchorPattern = regexp.MustCompile(`^(\d{1,2})\s+\[([^\]]+)\]\s*(.*)$`)

// Position is a point in the document: a page index and a top-down y.
type Position struct {
	Page int
	Y    float64
}

// Before reports whether p comes before q in reading order.
func (p Position) Before(q Position) bool {
	if p.Page != q.Page {
		return p.Page < q.Page
	}
	return p.Y < q.Y
}

// Anchor marks the start of one question.
type Anchor struct {
	Position
	Number int
	RawID  string // identifier without brackets
	Tail   string // rest of the anchor line
}

// MatchAnchor tests a single line against AnchorPattern.
func MatchAnchor(line string) (num int, id, tail string, ok bool) {
	m := AnchorPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, "", "", false
	}
	num, _ = strconv.Atoi(m[1])
	return num, m[2], strings.TrimSpace(m[3]), true
}

// IsAnchorLine reports whether line opens a question. Loaders use it as
// their block split rule so that two anchors never share a block top.
func IsAnchorLine(line string) bool {
	return AnchorPattern.MatchString(strings.TrimSpace(line))
}

// DetectAnchors scans every line of every block. All anchors found in one
// block share the block's top as their y. The result is sorted by (page, y)
// here, whatever order the blocks arrived in; anchors at the same position
// keep their input order.
func DetectAnchors(doc *parser.Document) []Anchor {
	var anchors []Anchor
	for _, page := range doc.Pages {
		for _, b := range page.Blocks {
			if b.Text == "" {
				continue
			}
			for _, line := range strings.Split(b.Text, "\n") {
				num, id, tail, ok := MatchAnchor(line)
				if !ok {
					continue
				}
				anchors = append(anchors, Anchor{
					Position: Position{Page: b.Page, Y: b.Top},
					Number:   num,
					RawID:    id,
					Tail:     tail,
				})
			}
		}
	}

	sort.SliceStable(anchors, func(i, j int) bool {
		return anchors[i].Before(anchors[j].Position)
	})
	return anchors
}

// Segment is the half-open range [Start, End) belonging to one question.
type Segment struct {
	Index int
	Start Position
	End   Position
}

// SinglePage reports whether the segment starts and ends on the same page.
func (s Segment) SinglePage() bool {
	return s.Start.Page == s.End.Page
}

// Build pairs consecutive anchors into segments. The last segment runs to
// the end of the last page. Anchors must be sorted as DetectAnchors returns
// them.
func Build(anchors []Anchor, lastPage int) []Segment {
	segs := make([]Segment, len(anchors))
	for i, a := range anchors {
		end := Position{Page: lastPage, Y: math.Inf(1)}
		if i+1 < len(anchors) {
			end = anchors[i+1].Position
		}
		segs[i] = Segment{Index: i, Start: a.Position, End: end}
	}
	return segs
}
