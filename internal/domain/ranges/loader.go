package ranges

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/perimeter/internal/domain/model"
)

// Parse reads a YAML range table:
//
//	economy:
//	  default: {min: -50, max: 100}
//	  cpi: {min: -5, max: 100}
func Parse(r io.Reader) (Table, error) {
	var raw map[string]map[string]Range
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return Table{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	t := make(Table, len(raw))
	for d, subtypes := range raw {
		t[model.Domain(d)] = subtypes
	}
	return t, nil
}

// LoadFile parses the file at path and layers it over the built-in table.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer func() { _ = f.Close() }()

	t, err := Parse(f)
	if err != nil {
		return nil, err
	}
	return Default().Merge(t)
}
