package ignore

// DefaultIgnoredNames are path components that are never scanned for references.
// The comparison is case-insensitive.
var DefaultIgnoredNames = []string{
	// Version control
	".git",
	".svn",
	".hg",

	// Engine caches and build output
	"Library",
	"Temp",
	"Logs",
	"obj",
	"Build",
	"Builds",
	"UserSettings",

	// IDE
	".idea",
	".vscode",
	".vs",

	// Tool state
	".assetref",
}

// DefaultIgnoredGlobs are base-name globs (lower case) for files that never carry references.
var DefaultIgnoredGlobs = []string{
	"*.swp",
	"*~",
	".ds_store",
	"thumbs.db",
	"*.log",
	"*.tmp",
}
