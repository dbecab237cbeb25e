package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// guardMarker identifies a hook script this package installed, so
// UninstallGuard never removes a hook it didn't write.
const guardMarker = "# agentmail-precommit-guard"

// guardScriptTemplate is the installed hook: it shells out to the reservation-check
// subcommand so the actual conflict logic lives in the core engine, not in
// the hook file itself (spec: "only install/uninstall of the hook script is
// in scope" — the linter/checker behavior the hook invokes is not).
const guardScriptTemplate = `#!/bin/sh
%s
# Blocks commits that touch files under an active exclusive reservation
# held by another agent. Installed by agentmail for project %q.
exec agentmail check-reservations --project %q --staged
`

// InstallGuard writes a pre-commit hook into repoPath/.git/hooks/pre-commit
// that defers to "agentmail check-reservations" for the project identified
// by projectSlug. It overwrites any prior agentmail-installed hook but
// refuses to clobber a hook it didn't write.
func InstallGuard(projectSlug, repoPath string) (string, error) {
	hooksDir := filepath.Join(repoPath, ".git", "hooks")
	if info, err := os.Stat(hooksDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("install guard: %s is not a git repository (no .git/hooks)", repoPath)
	}
	hookPath := filepath.Join(hooksDir, "pre-commit")

	if existing, err := os.ReadFile(hookPath); err == nil {
		if !strings.Contains(string(existing), guardMarker) {
			return "", fmt.Errorf("install guard: %s already has a pre-commit hook not managed by agentmail", hookPath)
		}
	}

	script := fmt.Sprintf(guardScriptTemplate, guardMarker, projectSlug, projectSlug)
	if err := os.WriteFile(hookPath, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("install guard: write %s: %w", hookPath, err)
	}
	return hookPath, nil
}

// UninstallGuard removes the pre-commit hook at repoPath/.git/hooks/pre-commit
// if and only if it was installed by InstallGuard, reporting whether it
// removed anything.
func UninstallGuard(repoPath string) (bool, error) {
	hookPath := filepath.Join(repoPath, ".git", "hooks", "pre-commit")
	data, err := os.ReadFile(hookPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("uninstall guard: read %s: %w", hookPath, err)
	}
	if !strings.Contains(string(data), guardMarker) {
		return false, nil
	}
	if err := os.Remove(hookPath); err != nil {
		return false, fmt.Errorf("uninstall guard: remove %s: %w", hookPath, err)
	}
	return true, nil
}
