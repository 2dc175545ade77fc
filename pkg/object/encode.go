package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MarshalBlob serializes a Blob (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// MarshalTree serializes a Tree. Entries are sorted by name before writing,
// so the bytes (and therefore the hash) do not depend on insertion order.
// Each entry is one line:
//
//	mode kind hash name
//
// The name comes last so entry names containing spaces round-trip.
func MarshalTree(t *Tree) []byte {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		kind := TypeBlob
		mode := e.Mode
		if e.IsDir {
			kind = TypeTree
			mode = ModeDir
		} else if strings.TrimSpace(mode) == "" {
			mode = ModeFile
		}
		fmt.Fprintf(&buf, "%s %s %s %s\n", mode, kind, e.Target, e.Name)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a Tree from its serialized form.
func UnmarshalTree(data []byte) (*Tree, error) {
	t := &Tree{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return t, nil
	}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, " ", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		mode, kind, target, name := parts[0], Type(parts[1]), parts[2], parts[3]
		switch kind {
		case TypeBlob:
			if mode != ModeFile && mode != ModeExecutable {
				return nil, fmt.Errorf("unmarshal tree: bad file mode %q", mode)
			}
		case TypeTree:
			if mode != ModeDir {
				return nil, fmt.Errorf("unmarshal tree: bad dir mode %q", mode)
			}
		default:
			return nil, fmt.Errorf("unmarshal tree: unknown entry kind %q", kind)
		}
		t.Entries = append(t.Entries, TreeEntry{
			Name:   name,
			IsDir:  kind == TypeTree,
			Mode:   mode,
			Target: Hash(target),
		})
	}
	return t, nil
}

// MarshalCommit serializes a Commit:
//
//	tree H
//	parent H     (zero, one, or two)
//	author A
//	timestamp T
//
//	message
func MarshalCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "timestamp %d\n", c.Timestamp)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a Commit from its serialized form.
func UnmarshalCommit(data []byte) (*Commit, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &Commit{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			c.Author = val
		case "timestamp":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad timestamp %q: %w", val, err)
			}
			c.Timestamp = ts
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("unmarshal commit: missing tree header")
	}
	return c, nil
}
