package search

import (
	"errors"
	"fmt"
	"strings"
)

// KeyFunc maps a path header to the key its group is stored under.
// ok=false drops the whole group (the path no longer resolves).
type KeyFunc func(header string) (key string, ok bool)

// ParseGrouped turns heading-mode output into key -> matched lines.
// A line that does not start with matchPrefix is a path header; every
// following line up to the next header is a match of that file. Blank lines
// separate groups and are skipped. A match line before any header is an
// ErrProtocolViolation.
func ParseGrouped(lines []string, matchPrefix string, keyOf KeyFunc) (map[string][]string, error) {
	if matchPrefix == "" {
		return nil, errors.New("parse grouped output: empty match prefix")
	}

	groups := make(map[string][]string)
	var (
		current  string
		inGroup  bool
		dropping bool
	)

	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, matchPrefix) {
			key, ok := keyOf(line)
			inGroup = true
			dropping = !ok
			if ok {
				current = key
				if _, exists := groups[key]; !exists {
					groups[key] = []string{}
				}
			}
			continue
		}

		if !inGroup {
			return nil, fmt.Errorf("%w: line %d %q precedes any path header", ErrProtocolViolation, i+1, line)
		}
		if dropping {
			continue
		}
		groups[current] = append(groups[current], line)
	}

	return groups, nil
}
