package changelog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks a change log line that is not "operation,identifier,path".
var ErrMalformed = errors.New("malformed change log entry")

// Op is the operation recorded for a file.
type Op string

const (
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// Entry is one change log line. Fields must not contain commas.
type Entry struct {
	Op         Op
	Identifier string
	Path       string // root-relative, forward slashes
}

func (e Entry) String() string {
	return string(e.Op) + "," + e.Identifier + "," + e.Path
}

// ParseEntry parses one raw log line.
func ParseEntry(line string) (Entry, error) {
	fields := strings.Split(strings.TrimRight(line, "\r"), ",")
	if len(fields) != 3 {
		return Entry{}, fmt.Errorf("%w: %q has %d fields", ErrMalformed, line, len(fields))
	}

	op := Op(fields[0])
	if op != OpUpdate && op != OpRemove {
		return Entry{}, fmt.Errorf("%w: unknown operation %q", ErrMalformed, fields[0])
	}
	if fields[1] == "" {
		return Entry{}, fmt.Errorf("%w: %q has no identifier", ErrMalformed, line)
	}
	return Entry{Op: op, Identifier: fields[1], Path: fields[2]}, nil
}
