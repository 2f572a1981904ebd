// Package integrations turns instance files from outside sources into
// model.Instance values.
package integrations

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"elasticroute/internal/integrations/cvrplib"
	"elasticroute/internal/integrations/loads"
	"elasticroute/internal/integrations/solomon"
	"elasticroute/internal/model"
)

var ErrUnknownFormat = errors.New("integrations: unknown instance format")

// InstanceReader parses one instance. name is the file name, used as a
// fallback instance name and by formats that encode data in it.
type InstanceReader interface {
	Name() string
	Read(r io.Reader, name string) (*model.Instance, error)
}

// JSONReader reads the service's own instance format.
type JSONReader struct{}

func (JSONReader) Name() string { return "json" }

func (JSONReader) Read(r io.Reader, name string) (*model.Instance, error) {
	var inst model.Instance
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("integrations: json: %w", err)
	}
	if inst.Name == "" {
		inst.Name = name
	}
	return &inst, nil
}

// YAMLReader reads the same structure as JSONReader from YAML.
type YAMLReader struct{}

func (YAMLReader) Name() string { return "yaml" }

func (YAMLReader) Read(r io.Reader, name string) (*model.Instance, error) {
	var inst model.Instance
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("integrations: yaml: %w", err)
	}
	if inst.Name == "" {
		inst.Name = name
	}
	return &inst, nil
}

var readers = []InstanceReader{cvrplib.Reader{}, solomon.Reader{}, loads.Reader{}, JSONReader{}, YAMLReader{}}

// ByName returns the reader for a format name.
func ByName(format string) (InstanceReader, error) {
	for _, r := range readers {
		if r.Name() == strings.ToLower(format) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Detect guesses the format from a file extension.
func Detect(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vrp":
		return "cvrplib", nil
	case ".txt":
		return "solomon", nil
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	}
	return "", fmt.Errorf("%w: extension of %s", ErrUnknownFormat, path)
}

// ReadFile reads path with the given format, detected from the extension
// when format is empty.
func ReadFile(path, format string) (*model.Instance, error) {
	if format == "" {
		f, err := Detect(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	rd, err := ByName(format)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return rd.Read(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}
