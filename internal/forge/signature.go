package forge

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Signature describes the build flags that matter for correctness as an
// ordered set of key=value pairs. It is immutable once constructed; Merge
// returns a new Signature rather than mutating the receiver.
type Signature struct {
	keys   []string
	values map[string]string
}

// NewSignature builds a Signature from "KEY=VALUE" assignments. Later
// assignments of the same key override earlier ones without changing the
// key's position.
func NewSignature(assignments ...string) (Signature, error) {
	s := Signature{values: make(map[string]string, len(assignments))}
	for _, a := range assignments {
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			return Signature{}, fmt.Errorf("invalid flag assignment %q (want KEY=VALUE)", a)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return Signature{}, fmt.Errorf("invalid flag assignment %q: empty key", a)
		}
		if _, seen := s.values[key]; !seen {
			s.keys = append(s.keys, key)
		}
		s.values[key] = strings.TrimSpace(val)
	}
	return s, nil
}

// mustSignature is for the built-in catalog, where assignments are literals.
func mustSignature(assignments ...string) Signature {
	s, err := NewSignature(assignments...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len reports the number of flags in the signature.
func (s Signature) Len() int { return len(s.keys) }

// Get returns the value for key and whether the key is present.
func (s Signature) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the flag keys in their original order.
func (s Signature) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Merge returns a new Signature with overrides applied on top of s.
// Overridden keys keep their position; new keys are appended.
func (s Signature) Merge(overrides Signature) Signature {
	out := Signature{values: make(map[string]string, len(s.keys)+len(overrides.keys))}
	for _, k := range s.keys {
		out.keys = append(out.keys, k)
		out.values[k] = s.values[k]
	}
	for _, k := range overrides.keys {
		if _, seen := out.values[k]; !seen {
			out.keys = append(out.keys, k)
		}
		out.values[k] = overrides.values[k]
	}
	return out
}

// CompatibleWith reports whether actual satisfies s: every key of s must be
// present in actual with an equivalent value. Extra keys in actual are
// ignored. The check is one-directional.
func (s Signature) CompatibleWith(actual Signature) bool {
	for _, k := range s.keys {
		av, ok := actual.values[k]
		if !ok || !flagValuesEqual(s.values[k], av) {
			return false
		}
	}
	return true
}

// ConfigureArgs renders the signature as -DKEY=VALUE toolchain arguments.
func (s Signature) ConfigureArgs() []string {
	args := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		args = append(args, fmt.Sprintf("-D%s=%s", k, s.values[k]))
	}
	return args
}

func (s Signature) String() string {
	parts := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		parts = append(parts, k+"="+s.values[k])
	}
	return strings.Join(parts, " ")
}

// flagValuesEqual compares flag values, normalizing CMake's boolean spellings
// so that ON/YES/TRUE/1 all match each other (and likewise for the false
// spellings). Non-boolean values compare as exact strings.
func flagValuesEqual(a, b string) bool {
	if a == b {
		return true
	}
	ab, aok := boolValue(a)
	bb, bok := boolValue(b)
	return aok && bok && ab == bb
}

func boolValue(v string) (val, ok bool) {
	switch strings.ToUpper(v) {
	case "ON", "YES", "TRUE", "1", "Y":
		return true, true
	case "OFF", "NO", "FALSE", "0", "N", "", "IGNORE", "NOTFOUND":
		return false, true
	}
	return false, false
}

// ParseCMakeCache reads a CMakeCache.txt stream into a Signature. Cache
// entries have the form KEY:TYPE=VALUE; comment lines (# or //) and blank
// lines are skipped, as are CMake's INTERNAL bookkeeping entries.
func ParseCMakeCache(r io.Reader) (Signature, error) {
	s := Signature{values: make(map[string]string)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		head, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, typ, ok := strings.Cut(head, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(typ, "INTERNAL") || strings.EqualFold(typ, "STATIC") {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, seen := s.values[key]; !seen {
			s.keys = append(s.keys, key)
		}
		s.values[key] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return Signature{}, fmt.Errorf("error reading cache: %w", err)
	}
	// Deterministic order for parsed caches; the file order carries no meaning.
	sort.Strings(s.keys)
	return s, nil
}

// ReadCacheSignature loads and parses the toolchain cache file at path.
func ReadCacheSignature(path string) (Signature, error) {
	f, err := os.Open(path)
	if err != nil {
		return Signature{}, err
	}
	defer f.Close()
	return ParseCMakeCache(f)
}
