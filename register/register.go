package register

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lexandro/assetref-mcp/assets"
)

// Scopes accepted by Register.
const (
	ScopeProject = "project"
	ScopeUser    = "user"
)

type mcpServerEntry struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Options describes one registration.
type Options struct {
	ServerName string   // key under mcpServers, e.g. "assetref"
	Scope      string   // ScopeProject or ScopeUser
	Directory  string   // project directory (project scope only, default ".")
	ServerArgs []string // forwarded to the server on launch
	BinaryPath string   // detected from the running executable when empty
}

// Register adds or updates the server entry in the MCP client config for the
// given scope and returns the config path it wrote.
func Register(opts Options) (string, error) {
	if opts.Scope != ScopeProject && opts.Scope != ScopeUser {
		return "", fmt.Errorf("unknown scope %q (must be %q or %q)", opts.Scope, ScopeProject, ScopeUser)
	}
	if opts.ServerName == "" {
		return "", fmt.Errorf("server name is required")
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		var err error
		binaryPath, err = detectBinaryPath()
		if err != nil {
			return "", err
		}
	}

	directory := opts.Directory
	if directory == "" {
		directory = "."
	}
	configPath, err := resolveConfigPath(opts.Scope, directory)
	if err != nil {
		return "", err
	}

	if err := writeConfig(configPath, opts.ServerName, buildEntry(binaryPath, opts.ServerArgs)); err != nil {
		return "", err
	}
	return configPath, nil
}

// DeriveServerName extracts a server name from a binary path by stripping .exe and -mcp suffixes.
func DeriveServerName(binaryPath string) string {
	name := filepath.Base(binaryPath)
	name = strings.TrimSuffix(name, ".exe")
	name = strings.TrimSuffix(name, "-mcp")
	return name
}

func detectBinaryPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("getting executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks for %s: %w", exe, err)
	}
	return resolved, nil
}

func resolveConfigPath(scope string, directory string) (string, error) {
	if scope == ScopeProject {
		absDir, err := filepath.Abs(directory)
		if err != nil {
			return "", fmt.Errorf("resolving directory %s: %w", directory, err)
		}
		return filepath.Join(absDir, ".mcp.json"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".claude.json"), nil
}

func buildEntry(binaryPath string, serverArgs []string) mcpServerEntry {
	if runtime.GOOS == "windows" {
		args := []string{"/C", binaryPath}
		args = append(args, serverArgs...)
		return mcpServerEntry{Command: "cmd", Args: args}
	}
	return mcpServerEntry{Command: binaryPath, Args: serverArgs}
}

// writeConfig merges the entry into the config file, keeping every other key.
func writeConfig(configPath string, serverName string, entry mcpServerEntry) error {
	config := map[string]any{}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("parsing existing config %s: %w", configPath, err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("reading config %s: %w", configPath, err)
	}

	servers, ok := config["mcpServers"]
	if !ok || servers == nil {
		servers = map[string]any{}
		config["mcpServers"] = servers
	}
	serversMap, ok := servers.(map[string]any)
	if !ok {
		return fmt.Errorf("mcpServers in %s is not an object", configPath)
	}
	serversMap[serverName] = entry

	output, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	output = append(output, '\n')

	if err := assets.WriteFile(configPath, output); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
