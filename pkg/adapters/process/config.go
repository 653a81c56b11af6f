package process

import (
	"os"
	"path/filepath"
	"strings"
)

// Placeholders expanded in executable arguments.
const (
	TokenInput     = "{input}"
	TokenOutputDir = "{output_dir}"
	TokenWorkspace = "{workspace}"
	TokenSession   = "{session}"
)

// Template describes how to invoke the converter for a session.
type Template struct {
	// Command is the executable. A relative path is resolved against the
	// session workspace, where it is expected to have been staged. A bare
	// name that was not staged is looked up on PATH.
	Command string
	Args    []string
}

// Vars are the per-session values substituted into a Template.
type Vars struct {
	Input     string
	OutputDir string
	Workspace string
	Session   string
}

// Render resolves the command path and expands every placeholder in Args.
func (t Template) Render(v Vars) (string, []string) {
	replacer := strings.NewReplacer(
		TokenInput, v.Input,
		TokenOutputDir, v.OutputDir,
		TokenWorkspace, v.Workspace,
		TokenSession, v.Session,
	)

	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = replacer.Replace(a)
	}

	return resolveCommand(t.Command, v.Workspace), args
}

func resolveCommand(command, workspace string) string {
	if filepath.IsAbs(command) || workspace == "" {
		return command
	}
	staged := filepath.Join(workspace, filepath.FromSlash(command))
	if _, err := os.Stat(staged); err == nil {
		return staged
	}
	// A bare name that was not staged is looked up on PATH, like `matlab`.
	if !strings.ContainsAny(command, `/\`) {
		return command
	}
	return staged
}
