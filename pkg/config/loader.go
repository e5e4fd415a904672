package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape. Every field is optional; set fields
// overlay the defaults (and are themselves overridden by CLI arguments).
// Durations are plain integers so the same struct decodes from all three
// formats.
type fileConfig struct {
	Root            *string  `json:"root,omitempty" yaml:"root" hcl:"root,optional"`
	Endpoint        *string  `json:"endpoint,omitempty" yaml:"endpoint" hcl:"endpoint,optional"`
	Username        *string  `json:"username,omitempty" yaml:"username" hcl:"username,optional"`
	Password        *string  `json:"password,omitempty" yaml:"password" hcl:"password,optional"`
	Parallel        *int     `json:"parallel,omitempty" yaml:"parallel" hcl:"parallel,optional"`
	MaxAttempts     *int     `json:"max_attempts,omitempty" yaml:"max_attempts" hcl:"max_attempts,optional"`
	SubmitDelayMs   *int     `json:"submit_delay_ms,omitempty" yaml:"submit_delay_ms" hcl:"submit_delay_ms,optional"`
	TokenTTLSecs    *int     `json:"token_ttl_seconds,omitempty" yaml:"token_ttl_seconds" hcl:"token_ttl_seconds,optional"`
	PageTimeoutSecs *int     `json:"page_timeout_seconds,omitempty" yaml:"page_timeout_seconds" hcl:"page_timeout_seconds,optional"`
	UploadTimeoutS  *int     `json:"upload_timeout_seconds,omitempty" yaml:"upload_timeout_seconds" hcl:"upload_timeout_seconds,optional"`
	HomeSection     *string  `json:"home_section,omitempty" yaml:"home_section" hcl:"home_section,optional"`
	MediaDir        *string  `json:"media_dir,omitempty" yaml:"media_dir" hcl:"media_dir,optional"`
	Ignore          []string `json:"ignore,omitempty" yaml:"ignore" hcl:"ignore,optional"`
}

// Load reads a config file and overlays it onto the defaults. The format
// is determined by the file extension: .json, .yaml/.yml or .hcl.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	var fc *fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		fc, err = loadJSON(data)
	case ".yaml", ".yml":
		fc, err = loadYAML(data)
	case ".hcl":
		fc, err = loadHCL(data, path)
	default:
		return nil, errors.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	fc.apply(cfg)
	return cfg, nil
}

func loadJSON(data []byte) (*fileConfig, error) {
	var fc fileConfig
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	return &fc, nil
}

func loadYAML(data []byte) (*fileConfig, error) {
	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &fc, nil
}

func loadHCL(data []byte, filename string) (*fileConfig, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &fc)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}
	return &fc, nil
}

func (fc *fileConfig) apply(cfg *Config) {
	if fc.Root != nil {
		cfg.Root = *fc.Root
	}
	if fc.Endpoint != nil {
		cfg.Endpoint = *fc.Endpoint
	}
	if fc.Username != nil {
		cfg.Username = *fc.Username
	}
	if fc.Password != nil {
		cfg.Password = *fc.Password
	}
	if fc.Parallel != nil {
		cfg.Parallel = *fc.Parallel
	}
	if fc.MaxAttempts != nil {
		cfg.MaxAttempts = *fc.MaxAttempts
	}
	if fc.SubmitDelayMs != nil {
		cfg.SubmitDelay = time.Duration(*fc.SubmitDelayMs) * time.Millisecond
	}
	if fc.TokenTTLSecs != nil {
		cfg.TokenTTL = time.Duration(*fc.TokenTTLSecs) * time.Second
	}
	if fc.PageTimeoutSecs != nil {
		cfg.PageTimeout = time.Duration(*fc.PageTimeoutSecs) * time.Second
	}
	if fc.UploadTimeoutS != nil {
		cfg.UploadTimeout = time.Duration(*fc.UploadTimeoutS) * time.Second
	}
	if fc.HomeSection != nil {
		cfg.HomeSection = *fc.HomeSection
	}
	if fc.MediaDir != nil {
		cfg.MediaDir = *fc.MediaDir
	}
	if len(fc.Ignore) > 0 {
		cfg.IgnoreGlobs = fc.Ignore
	}
}
