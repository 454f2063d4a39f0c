// Package manifest builds, reads and writes symchk-compatible manifests.
//
// A manifest is plain text with one "<pdb name>,<GUID><age>,1" line per PDB.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrMalformedLine indicates a manifest line without exactly 3 fields.
var ErrMalformedLine = errors.New("malformed manifest line")

// Line is one parsed manifest entry.
type Line struct {
	Raw       string
	Name      string
	Signature string // GUID followed by age
	Flag      string
}

// ParseLine splits a manifest line into its three comma separated fields.
func ParseLine(raw string) (Line, error) {
	fields := strings.Split(raw, ",")
	if len(fields) != 3 {
		return Line{}, fmt.Errorf("%w: %q", ErrMalformedLine, raw)
	}
	return Line{Raw: raw, Name: fields[0], Signature: fields[1], Flag: fields[2]}, nil
}

// Write replaces the manifest at path with lines joined by "\n", without a
// trailing newline.
func Write(path string, lines []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Read returns the lines of the manifest at path. CRLF line endings and a
// trailing newline are tolerated; blank lines are dropped.
func Read(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimSuffix(l, "\r")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// SortDedup returns the sorted set of distinct lines. The input is not
// modified.
func SortDedup(lines []string) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	sort.Strings(out)

	n := 0
	for i, l := range out {
		if i > 0 && l == out[n-1] {
			continue
		}
		out[n] = l
		n++
	}
	return out[:n]
}
