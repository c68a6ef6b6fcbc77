package forge

import "os/exec"

// CheckHostTools verifies the external toolchain is actually present before
// any pipeline starts, so a missing tool surfaces as one clear error instead
// of a mid-build failure.
func CheckHostTools(deps []*Dependency) error {
	if _, err := exec.LookPath("cmake"); err != nil {
		return &UnsupportedEnvironmentError{Tool: "cmake", Hint: "the build toolchain"}
	}
	for _, dep := range deps {
		if dep.ArchiveURL == "" {
			if _, err := exec.LookPath("git"); err != nil {
				return &UnsupportedEnvironmentError{Tool: "git", Hint: "needed to clone " + dep.RepoURL}
			}
			break
		}
	}
	return nil
}
