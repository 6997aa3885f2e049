// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config provides HCL configuration handling with comment
// preservation, so operator edits survive programmatic updates.
package config

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"ravelid.dev/ravelid/internal/errors"
)

// ConfigFile represents an HCL configuration file with preserved source.
// This allows round-trip editing while preserving comments and formatting.
type ConfigFile struct {
	Path     string
	Config   *Config
	hclFile  *hclwrite.File
	original []byte
}

// LoadConfigFile loads an HCL config file, preserving the original source
// for round-trip editing with comments.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindNotFound, "failed to read config file")
	}
	return LoadConfigFromBytes(path, data)
}

// LoadConfigFromBytes loads config from bytes, preserving source for round-trip.
func LoadConfigFromBytes(filename string, data []byte) (*ConfigFile, error) {
	hclFile, diags := hclwrite.ParseConfig(data, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, errors.Errorf(errors.KindValidation, "failed to parse HCL for writing: %s", diags.Error())
	}

	cfg := Default()
	if err := hclsimple.Decode(filename, data, nil, cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to decode config")
	}

	return &ConfigFile{Path: filename, Config: cfg, hclFile: hclFile, original: data}, nil
}

// Save writes the config back to disk, preserving comments where possible.
func (cf *ConfigFile) Save() error {
	return cf.SaveTo(cf.Path)
}

// SaveTo writes the config to a specific path.
func (cf *ConfigFile) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create directory")
	}

	if err := os.WriteFile(path, cf.hclFile.Bytes(), 0600); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to write config")
	}

	cf.Path = path
	cf.original = cf.hclFile.Bytes()
	return nil
}

// GetRawHCL returns the current HCL source as a string.
func (cf *ConfigFile) GetRawHCL() string {
	return string(cf.hclFile.Bytes())
}

// SetAttribute sets a top-level attribute (e.g. log_level = "debug").
func (cf *ConfigFile) SetAttribute(name string, value any) error {
	ctyVal, err := toCtyValue(value)
	if err != nil {
		return errors.Wrapf(err, errors.KindValidation, "invalid value for %s", name)
	}
	cf.hclFile.Body().SetAttributeValue(name, ctyVal)
	return cf.reloadConfig()
}

func (cf *ConfigFile) reloadConfig() error {
	data := cf.hclFile.Bytes()
	cfg := Default()
	if err := hclsimple.Decode(cf.Path, data, nil, cfg); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to reload config")
	}
	cf.Config = cfg
	return nil
}

// HasChanges returns true if the config has been modified since loading.
func (cf *ConfigFile) HasChanges() bool {
	return string(cf.original) != string(cf.hclFile.Bytes())
}

// ValidateHCL validates HCL source without modifying the config.
func ValidateHCL(hclSource string) error {
	data := []byte(hclSource)

	_, diags := hclwrite.ParseConfig(data, "validate.hcl", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return errors.Errorf(errors.KindValidation, "syntax error: %s", diags.Error())
	}

	cfg := Default()
	if err := hclsimple.Decode("validate.hcl", data, nil, cfg); err != nil {
		return errors.Wrap(err, errors.KindValidation, "schema error")
	}
	return nil
}

func toCtyValue(v any) (cty.Value, error) {
	switch val := v.(type) {
	case bool:
		return cty.BoolVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case string:
		return cty.StringVal(val), nil
	default:
		return cty.NilVal, errors.Errorf(errors.KindValidation, "unsupported type: %T", v)
	}
}
