package forge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testDep returns a small dependency for fixtures. The marker matches what
// the fake toolchain and the fixture helpers create.
func testDep(name string) *Dependency {
	return &Dependency{
		Name:    name,
		Version: "1.0",
		RepoURL: "https://example.invalid/" + name + ".git",
		Ref:     "v1.0",
		Desired: mustSignature(
			"CMAKE_BUILD_TYPE=Release",
			"ENABLE_GUI=ON",
		),
		Marker: filepath.Join("lib", "cmake"),
		EnvVar: strings.ToUpper(name) + "_DIR",
	}
}

// writeCache writes a CMakeCache.txt into dep's build tree recording the
// given assignments plus the staging install prefix.
func writeCache(t *testing.T, dep *Dependency, prefix string, assignments ...string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("# This is the CMakeCache file.\n")
	b.WriteString("// For build in directory: " + dep.BuildDir(prefix) + "\n\n")
	fmt.Fprintf(&b, "%s:PATH=%s\n", installPrefixKey, dep.StagingDir(prefix))
	for _, a := range assignments {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			t.Fatalf("bad assignment %q", a)
		}
		fmt.Fprintf(&b, "%s:STRING=%s\n", k, v)
	}
	b.WriteString("CMAKE_CACHE_MAJOR_VERSION:INTERNAL=3\n")

	buildDir := dep.BuildDir(prefix)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(buildDir, cacheFileName), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeInstall materializes a final install directory with the marker and a
// payload file so tests can assert its content survives failed runs.
func writeInstall(t *testing.T, dep *Dependency, prefix, payload string) {
	t.Helper()
	dir := dep.InstallDir(prefix)
	if err := os.MkdirAll(filepath.Join(dir, dep.Marker), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "payload"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readPayload(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "payload"))
	if err != nil {
		t.Fatalf("reading payload in %s: %v", dir, err)
	}
	return string(data)
}

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}
