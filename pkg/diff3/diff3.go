package diff3

import (
	"bytes"
)

// Result holds the outcome of a three-way merge.
type Result struct {
	Merged    []byte // merged content, with conflict markers when Conflicts > 0
	Conflicts int    // number of conflicted regions
}

// Labels name the two sides in conflict markers.
type Labels struct {
	Ours   string
	Theirs string
}

// DefaultLabels are used when a caller passes empty label names.
var DefaultLabels = Labels{Ours: "ours", Theirs: "theirs"}

// Merge performs a three-way merge of base, ours, and theirs.
//
// Both sides are diffed against the base; each diff becomes a sequence of
// spans covering contiguous base ranges. Spans from the two sides are walked
// in parallel: regions changed on one side take that side, identical changes
// collapse, and regions changed differently on both sides become conflicts
// delimiting ancestor, ours, and theirs content.
func Merge(base, ours, theirs []byte, labels Labels) Result {
	if labels.Ours == "" {
		labels.Ours = DefaultLabels.Ours
	}
	if labels.Theirs == "" {
		labels.Theirs = DefaultLabels.Theirs
	}

	baseLines := SplitLines(string(base))
	oursSpans := spansAgainstBase(baseLines, SplitLines(string(ours)))
	theirsSpans := spansAgainstBase(baseLines, SplitLines(string(theirs)))

	w := &mergeWriter{baseLines: baseLines, labels: labels}
	w.run(oursSpans, theirsSpans)
	return Result{Merged: w.out.Bytes(), Conflicts: w.conflicts}
}

// span covers the contiguous base range [start, end) and carries the side's
// replacement lines for that range. Unchanged spans cover exactly one base
// line; changed spans may cover zero (pure insertion) or more.
type span struct {
	start, end int
	lines      []string
	changed    bool
}

// spansAgainstBase converts a two-way edit script (base → side) into spans.
func spansAgainstBase(base, side []string) []span {
	edits := Diff(base, side)

	var spans []span
	pos := 0
	for i := 0; i < len(edits); {
		if edits[i].Kind == Keep {
			spans = append(spans, span{
				start: pos,
				end:   pos + 1,
				lines: []string{edits[i].Line},
			})
			pos++
			i++
			continue
		}

		// Absorb a contiguous run of deletes/inserts into one changed span.
		start := pos
		var repl []string
		for i < len(edits) && edits[i].Kind != Keep {
			if edits[i].Kind == Delete {
				pos++
			} else {
				repl = append(repl, edits[i].Line)
			}
			i++
		}
		spans = append(spans, span{start: start, end: pos, lines: repl, changed: true})
	}
	return spans
}

type mergeWriter struct {
	baseLines []string
	labels    Labels
	out       bytes.Buffer
	conflicts int
}

func (w *mergeWriter) run(ours, theirs []span) {
	oi, ti := 0, 0
	for oi < len(ours) || ti < len(theirs) {
		switch {
		case oi >= len(ours):
			w.takeClean(theirs[ti].lines)
			ti++
		case ti >= len(theirs):
			w.takeClean(ours[oi].lines)
			oi++
		case ours[oi].start == theirs[ti].start && ours[oi].end == theirs[ti].end:
			w.emitAligned(ours[oi], theirs[ti])
			oi++
			ti++
		default:
			oi, ti = w.emitRegion(ours, theirs, oi, ti)
		}
	}
}

// emitAligned handles two spans covering exactly the same base range.
func (w *mergeWriter) emitAligned(o, t span) {
	switch {
	case o.changed && t.changed:
		if linesEqual(o.lines, t.lines) {
			w.takeClean(o.lines)
		} else {
			w.conflict(o.lines, w.baseLines[o.start:o.end], t.lines)
		}
	case o.changed:
		w.takeClean(o.lines)
	case t.changed:
		w.takeClean(t.lines)
	default:
		w.takeClean(o.lines)
	}
}

// emitRegion handles misaligned spans: one side's change straddles several
// of the other side's spans. It gathers every span from both sides that
// overlaps the combined base region, then resolves the region as a whole.
func (w *mergeWriter) emitRegion(ours, theirs []span, oi, ti int) (int, int) {
	end := min(ours[oi].start, theirs[ti].start)
	if ours[oi].end > end {
		end = ours[oi].end
	}
	if theirs[ti].end > end {
		end = theirs[ti].end
	}

	var oursRegion, theirsRegion []span
	for {
		grew := false
		for oi < len(ours) && ours[oi].start < end {
			if ours[oi].end > end {
				end = ours[oi].end
				grew = true
			}
			oursRegion = append(oursRegion, ours[oi])
			oi++
		}
		for ti < len(theirs) && theirs[ti].start < end {
			if theirs[ti].end > end {
				end = theirs[ti].end
				grew = true
			}
			theirsRegion = append(theirsRegion, theirs[ti])
			ti++
		}
		if !grew {
			break
		}
	}

	start := end
	if len(oursRegion) > 0 && oursRegion[0].start < start {
		start = oursRegion[0].start
	}
	if len(theirsRegion) > 0 && theirsRegion[0].start < start {
		start = theirsRegion[0].start
	}

	oursLines := flattenSpans(oursRegion)
	theirsLines := flattenSpans(theirsRegion)
	oursChanged := anyChanged(oursRegion)
	theirsChanged := anyChanged(theirsRegion)
	baseRegion := w.baseLines[start:end]

	switch {
	case oursChanged && theirsChanged:
		if linesEqual(oursLines, theirsLines) {
			w.takeClean(oursLines)
		} else {
			w.conflict(oursLines, baseRegion, theirsLines)
		}
	case oursChanged:
		w.takeClean(oursLines)
	case theirsChanged:
		w.takeClean(theirsLines)
	default:
		w.takeClean(baseRegion)
	}
	return oi, ti
}

func (w *mergeWriter) takeClean(lines []string) {
	for _, l := range lines {
		w.out.WriteString(l)
		w.out.WriteByte('\n')
	}
}

func (w *mergeWriter) conflict(ours, base, theirs []string) {
	w.conflicts++
	w.out.WriteString("<<<<<<< " + w.labels.Ours + "\n")
	w.takeClean(ours)
	w.out.WriteString("||||||| base\n")
	w.takeClean(base)
	w.out.WriteString("=======\n")
	w.takeClean(theirs)
	w.out.WriteString(">>>>>>> " + w.labels.Theirs + "\n")
}

func flattenSpans(spans []span) []string {
	var lines []string
	for _, s := range spans {
		lines = append(lines, s.lines...)
	}
	return lines
}

func anyChanged(spans []span) bool {
	for _, s := range spans {
		if s.changed {
			return true
		}
	}
	return false
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
