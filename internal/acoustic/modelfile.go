package acoustic

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type modelHeader struct {
	Kind string `yaml:"kind"`
}

// LoadModelFile decodes the YAML model definition at path into out. The
// document's kind field must equal kind and unknown fields are rejected.
func LoadModelFile(path, kind string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model %s: %w", path, err)
	}

	var h modelHeader
	if err := yaml.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("parse model %s: %w", path, err)
	}
	if h.Kind != kind {
		return fmt.Errorf("model %s: kind %q, want %q", path, h.Kind, kind)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode model %s: %w", path, err)
	}
	return nil
}
