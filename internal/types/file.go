package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// IsDocumentFile reports whether path has an extension ReadDocumentFile understands.
func IsDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// ReadDocumentFile reads a CV document from a JSON or YAML file.
// The format is chosen by file extension.
func ReadDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document file %s: %w", path, err)
	}
	doc, err := DecodeDocument(path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document file %s: %w", path, err)
	}
	return doc, nil
}

// DecodeDocument decodes data using the format implied by name's extension.
func DecodeDocument(name string, data []byte) (*Document, error) {
	var doc Document
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported document format %q", filepath.Ext(name))
	}
	return &doc, nil
}

// WriteDocumentFile writes doc to path as JSON or YAML, atomically via a temp file.
func WriteDocumentFile(path string, doc *Document) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
	default:
		return fmt.Errorf("unsupported document format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
