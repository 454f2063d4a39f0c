// Package symsrv parses symbol-server path specs and maps PDB identities onto
// the symbol-server directory layout.
package symsrv

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedSpecForm indicates a spec that is not "SRV*<cache>*<url>".
	ErrUnsupportedSpecForm = errors.New("unsupported symbol server spec")

	// ErrMultiServerUnsupported indicates a ";" separated chain of specs.
	ErrMultiServerUnsupported = errors.New("multiple symbol servers are not supported")

	// ErrUnsafeName indicates a PDB name or signature that would escape its
	// directory in the cache.
	ErrUnsafeName = errors.New("unsafe symbol path component")
)

// Spec is a single local cache plus remote server pair.
type Spec struct {
	CacheRoot string
	ServerURL string
}

// Parse parses "SRV*<local cache path>*<remote base url>".
func Parse(s string) (Spec, error) {
	if strings.Contains(s, ";") {
		return Spec{}, fmt.Errorf("%w: %q", ErrMultiServerUnsupported, s)
	}

	tokens := strings.Split(s, "*")
	if len(tokens) != 3 || tokens[0] != "SRV" {
		return Spec{}, fmt.Errorf("%w: %q, expected SRV*<cache>*<url>", ErrUnsupportedSpecForm, s)
	}

	spec := Spec{
		CacheRoot: tokens[1],
		ServerURL: strings.TrimRight(tokens[2], "/"),
	}
	if spec.CacheRoot == "" || spec.ServerURL == "" {
		return Spec{}, fmt.Errorf("%w: %q has an empty cache path or server url", ErrUnsupportedSpecForm, s)
	}
	return spec, nil
}

// String renders the spec back into SRV form.
func (s Spec) String() string {
	return "SRV*" + s.CacheRoot + "*" + s.ServerURL
}

// RelativePath returns "<name>/<signature>/<name>", the slash separated
// location of a PDB inside a symbol store.
func RelativePath(name, signature string) (string, error) {
	if err := checkComponent(name); err != nil {
		return "", err
	}
	if err := checkComponent(signature); err != nil {
		return "", err
	}
	return path.Join(name, signature, name), nil
}

// LocalPath returns where a PDB is stored under the cache root.
func (s Spec) LocalPath(name, signature string) (string, error) {
	rel, err := RelativePath(name, signature)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.CacheRoot, filepath.FromSlash(rel)), nil
}

// URL returns the address a PDB is fetched from.
func (s Spec) URL(name, signature string) (string, error) {
	rel, err := RelativePath(name, signature)
	if err != nil {
		return "", err
	}
	return s.ServerURL + "/" + rel, nil
}

func checkComponent(c string) error {
	if c == "" || c == "." || c == ".." || strings.ContainsAny(c, `/\`) {
		return fmt.Errorf("%w: %q", ErrUnsafeName, c)
	}
	return nil
}
