// Package config holds the uploader configuration: where the artifact
// tree lives, how to reach the wiki, and the tuning knobs for the
// concurrency and retry machinery.
package config

import (
	"net/url"
	"time"

	"gitlab.com/tozd/go/errors"
)

// Defaults for the tuning knobs.
const (
	DefaultRoot          = "./site"
	DefaultEndpoint      = "http://localhost/api.php"
	DefaultUsername      = "Sync"
	DefaultParallel      = 5
	DefaultMaxAttempts   = 5
	DefaultSubmitDelay   = 100 * time.Millisecond
	DefaultTokenTTL      = 60 * time.Second
	DefaultPageTimeout   = 30 * time.Second
	DefaultUploadTimeout = 120 * time.Second
	DefaultHomeSection   = "Homepage"
	DefaultMediaDir      = "media"
)

// Config is the fully resolved configuration for one sync run.
type Config struct {
	// Root is the artifact tree produced by the export stage.
	Root string

	// Endpoint is the wiki's api.php URL.
	Endpoint string

	Username string
	Password string

	// Parallel bounds the number of in-flight remote operations.
	Parallel int

	// MaxAttempts bounds retries per remote operation.
	MaxAttempts int

	// SubmitDelay paces task submission to avoid bursting the endpoint.
	SubmitDelay time.Duration

	// TokenTTL is how long a cached write token is trusted.
	TokenTTL time.Duration

	// PageTimeout bounds a single page-level API call; UploadTimeout
	// bounds a single file upload, which gets the longer budget.
	PageTimeout   time.Duration
	UploadTimeout time.Duration

	// HomeSection is assembled into the main page and excluded from the
	// index and sidebar.
	HomeSection string

	// MediaDir is the subdirectory of Root holding media files.
	MediaDir string

	// IgnoreGlobs are doublestar patterns matched against
	// section-relative artifact paths during discovery.
	IgnoreGlobs []string

	// DryRun discovers and diffs but performs no writes.
	DryRun bool
}

// Default returns a Config with every knob at its default.
func Default() *Config {
	return &Config{
		Root:          DefaultRoot,
		Endpoint:      DefaultEndpoint,
		Username:      DefaultUsername,
		Parallel:      DefaultParallel,
		MaxAttempts:   DefaultMaxAttempts,
		SubmitDelay:   DefaultSubmitDelay,
		TokenTTL:      DefaultTokenTTL,
		PageTimeout:   DefaultPageTimeout,
		UploadTimeout: DefaultUploadTimeout,
		HomeSection:   DefaultHomeSection,
		MediaDir:      DefaultMediaDir,
	}
}

// Validate checks the configuration before a run starts.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("artifact root is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return errors.Errorf("parsing endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("endpoint %q must be an http or https URL", c.Endpoint)
	}
	if c.Username == "" {
		return errors.New("username is required")
	}
	if c.Parallel < 1 {
		return errors.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if c.MaxAttempts < 1 {
		return errors.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.MediaDir == "" {
		return errors.New("media directory name is required")
	}
	return nil
}
