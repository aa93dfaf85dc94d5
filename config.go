package cktools

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"
)

// MergeConfig describes a merge job. The file format is JSON with comments and trailing commas.
type MergeConfig struct {
	Template   string          `json:"template"`    // COCO file providing the initial categories.
	Sources    []DataDirectory `json:"sources"`     // The directories to merge, in order.
	SampleSize int             `json:"sample_size"` // Max. annotation files per source; 0 for all.
	Seed       int64           `json:"seed"`        // Seed for the file sampling order.
	Threshold  int             `json:"threshold"`   // Min. annotations to keep a category.
	Output     string          `json:"output"`      // The merged COCO file.
}

// LoadMergeConfig reads the merge job configuration at path.
func LoadMergeConfig(path string) (*MergeConfig, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %q: %w", path, err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var c MergeConfig
	if err := json.Unmarshal(std, &c); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return &c, c.validate()
}

func (c *MergeConfig) validate() error {
	for i, s := range c.Sources {
		if s.ImageDir == "" || s.AnnotationDir == "" {
			return fmt.Errorf("source %d: image_dir and annotation_dir are required", i)
		}
	}
	if c.SampleSize < 0 {
		return fmt.Errorf("invalid sample_size %d", c.SampleSize)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("invalid threshold %d", c.Threshold)
	}
	return nil
}
