package diff3

// EditKind classifies a line in an edit script.
type EditKind int

const (
	Keep   EditKind = iota // line present in both sequences
	Insert                 // line present only in the new sequence
	Delete                 // line present only in the old sequence
)

// Edit is a single line operation in an edit script.
type Edit struct {
	Kind EditKind
	Line string
}

// Diff computes the shortest edit script transforming a into b using the
// Myers algorithm over whole lines. Runs in O((N+M)*D) time for edit
// distance D.
func Diff(a, b []string) []Edit {
	n, m := len(a), len(b)
	switch {
	case n == 0 && m == 0:
		return nil
	case n == 0:
		out := make([]Edit, m)
		for i, line := range b {
			out[i] = Edit{Kind: Insert, Line: line}
		}
		return out
	case m == 0:
		out := make([]Edit, n)
		for i, line := range a {
			out[i] = Edit{Kind: Delete, Line: line}
		}
		return out
	}

	max := n + m
	offset := max
	frontier := make([]int, 2*max+1)

	// rounds[d] snapshots the frontier after edit distance d, for backtracking.
	var rounds [][]int

	for d := 0; d <= max; d++ {
		for k := -d; k <= d; k += 2 {
			idx := k + offset
			var x int
			if k == -d || (k != d && frontier[idx-1] < frontier[idx+1]) {
				x = frontier[idx+1]
			} else {
				x = frontier[idx-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			frontier[idx] = x

			if x >= n && y >= m {
				rounds = append(rounds, append([]int(nil), frontier...))
				return unwind(rounds, a, b, d)
			}
		}
		rounds = append(rounds, append([]int(nil), frontier...))
	}
	return nil
}

// unwind walks the frontier snapshots backwards from (n, m) to (0, 0) and
// emits the edit script in forward order.
func unwind(rounds [][]int, a, b []string, dFinal int) []Edit {
	n, m := len(a), len(b)
	offset := n + m
	x, y := n, m

	var rev []Edit
	for d := dFinal; d > 0; d-- {
		k := x - y
		prev := rounds[d-1]

		var prevK int
		if k == -d || (k != d && prev[k-1+offset] < prev[k+1+offset]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := prev[prevK+offset]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			rev = append(rev, Edit{Kind: Keep, Line: a[x]})
		}
		if prevK == k-1 {
			x--
			rev = append(rev, Edit{Kind: Delete, Line: a[x]})
		} else {
			y--
			rev = append(rev, Edit{Kind: Insert, Line: b[y]})
		}
	}
	for x > 0 && y > 0 {
		x--
		y--
		rev = append(rev, Edit{Kind: Keep, Line: a[x]})
	}

	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// Lines computes a line-level edit script between two byte slices. Used by
// the diff command.
func Lines(a, b []byte) []Edit {
	return Diff(SplitLines(string(a)), SplitLines(string(b)))
}

// SplitLines splits s into lines without producing a trailing empty element
// for a final newline.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
