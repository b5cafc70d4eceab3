package search

import (
	"context"
	"errors"
)

var (
	// ErrSubprocess marks a search tool that could not be launched or exited abnormally.
	ErrSubprocess = errors.New("search tool failed")
	// ErrProtocolViolation marks grouped output that breaks the header/match contract.
	ErrProtocolViolation = errors.New("search output protocol violation")
)

// Args describes one search invocation independently of the tool running it.
type Args struct {
	Pattern string
	Root    string

	// FixedStrings treats Pattern as a literal instead of a regular expression.
	FixedStrings  bool
	CaseSensitive bool
	// Heading groups output under one path header line per file.
	Heading bool
	// OnlyMatching prints each matched text instead of the whole line.
	OnlyMatching bool
	// FilesOnly prints only the paths of files with at least one match.
	FilesOnly   bool
	LineNumbers bool

	// Includes and Excludes are globs; a file must match an include (when any
	// are given) and no exclude.
	Includes []string
	Excludes []string

	// Extra is appended verbatim before the pattern.
	Extra []string
}

// Build returns the ripgrep argv for these arguments. Arguments are passed as
// a vector, never through a shell, so patterns and paths need no quoting.
func (a Args) Build() []string {
	args := []string{"--color", "never"}

	switch {
	case a.FilesOnly:
		args = append(args, "--files-with-matches")
	case a.Heading:
		args = append(args, "--heading")
	default:
		args = append(args, "--no-heading")
	}
	if a.CaseSensitive {
		args = append(args, "--case-sensitive")
	} else {
		args = append(args, "--ignore-case")
	}
	if a.FixedStrings {
		args = append(args, "--fixed-strings")
	}
	if a.OnlyMatching {
		args = append(args, "--only-matching")
	}
	if a.LineNumbers {
		args = append(args, "--line-number")
	} else {
		args = append(args, "--no-line-number")
	}
	for _, glob := range a.Includes {
		args = append(args, "--glob", glob)
	}
	for _, glob := range a.Excludes {
		args = append(args, "--glob", "!"+glob)
	}
	args = append(args, a.Extra...)

	return append(args, "--regexp", a.Pattern, "--", a.Root)
}

// Invoker runs a search and returns its standard-output lines.
type Invoker interface {
	Invoke(ctx context.Context, args Args) ([]string, error)
}

// InvokeAsync runs inv on its own goroutine and calls cb exactly once with the outcome.
func InvokeAsync(ctx context.Context, inv Invoker, args Args, cb func(lines []string, err error)) {
	go func() {
		lines, err := inv.Invoke(ctx, args)
		cb(lines, err)
	}()
}
