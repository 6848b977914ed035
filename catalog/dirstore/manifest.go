// Package dirstore serves a catalog from a directory of YAML manifests and
// keeps it current by watching the directory for changes.
//
// Layout:
//
//	<root>/<owner>/<slug>.yaml
//
// A manifest may carry the component code inline (code) or point at a
// sibling file (code_file). Owner and slug default to the directory and file
// names.
package dirstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk description of one catalog entry.
type Manifest struct {
	Owner       string            `yaml:"owner,omitempty"`
	Slug        string            `yaml:"slug,omitempty"`
	Category    string            `yaml:"category,omitempty"`
	Code        string            `yaml:"code,omitempty"`
	CodeFile    string            `yaml:"code_file,omitempty"`
	LibraryDeps map[string]string `yaml:"library_deps,omitempty"`
	// Dependencies lists other entries as "owner/slug".
	Dependencies []string `yaml:"dependencies,omitempty"`
}

// LoadManifest reads the manifest at path and returns the node it describes
// together with a content hash used for change detection.
func LoadManifest(path string) (*catalog.Node, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, "", fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if m.Owner == "" {
		m.Owner = filepath.Base(filepath.Dir(path))
	}
	if m.Slug == "" {
		m.Slug = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	code := m.Code
	hashed := data
	if m.CodeFile != "" {
		codePath := m.CodeFile
		if !filepath.IsAbs(codePath) {
			codePath = filepath.Join(filepath.Dir(path), codePath)
		}
		raw, err := os.ReadFile(codePath)
		if err != nil {
			return nil, "", fmt.Errorf("read code file for %s: %w", path, err)
		}
		code = string(raw)
		hashed = append(append([]byte{}, data...), raw...)
	}

	node := &catalog.Node{
		Ref:         catalog.Ref{Owner: m.Owner, Slug: m.Slug, Category: m.Category},
		Code:        code,
		LibraryDeps: ast.LibraryDeps{},
	}
	if err := node.Ref.Validate(); err != nil {
		return nil, "", fmt.Errorf("manifest %s: %w", path, err)
	}
	for name, tag := range m.LibraryDeps {
		if tag == "" {
			tag = ast.LatestTag
		}
		node.LibraryDeps[name] = tag
	}
	for _, dep := range m.Dependencies {
		ref, err := catalog.ParseRef(dep)
		if err != nil {
			return nil, "", fmt.Errorf("manifest %s: dependency: %w", path, err)
		}
		node.CatalogRefs = append(node.CatalogRefs, ref)
	}

	return node, ast.ComputeHash(hashed), nil
}

// WriteManifest stores node under root using the default layout, with the
// code inline. It returns the manifest path.
func WriteManifest(root string, node *catalog.Node) (string, error) {
	if err := node.Ref.Validate(); err != nil {
		return "", err
	}
	m := Manifest{
		Category:    node.Ref.Category,
		Code:        node.Code,
		LibraryDeps: node.LibraryDeps,
	}
	for _, ref := range node.CatalogRefs {
		m.Dependencies = append(m.Dependencies, ref.Key())
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	dir := filepath.Join(root, node.Ref.Owner)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create owner directory: %w", err)
	}
	path := filepath.Join(dir, node.Ref.Slug+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}
