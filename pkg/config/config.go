package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/dupcheck/pkg/fsutil"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile is read when no --config flag is given.
	DefaultConfigFile = "config.toml"

	// EnvPrefix prefixes environment overrides, e.g. DUPCHECK_TESTOPS_LAUNCH_TOKEN.
	EnvPrefix = "DUPCHECK"

	// DefaultLocalPath is the default working copy location.
	DefaultLocalPath = "."

	// DefaultBranch is the branch new check branches are created from.
	DefaultBranch = "master"

	// DefaultRemote is the remote all sync operations run against.
	DefaultRemote = "origin"

	// DefaultTestsDirectory is the directory holding the check files.
	DefaultTestsDirectory = "tests"

	// DefaultDriver is the default database driver.
	DefaultDriver = "oracle"

	// DefaultTestOpsTimeout bounds the report upload request.
	DefaultTestOpsTimeout = "60s"

	// DefaultReportDir is the directory report documents are written to.
	DefaultReportDir = "allure-results"

	// DefaultArchivePath is the temporary bundle produced for upload.
	DefaultArchivePath = "allure-results.zip"

	// DefaultS3Prefix is the key prefix for mirrored bundles.
	DefaultS3Prefix = "dupcheck/launches"
)

// Config is the root configuration for dupcheck.
type Config struct {
	Repository RepositoryConfig `yaml:"repository" mapstructure:"repository"`
	Tests      TestsConfig      `yaml:"tests" mapstructure:"tests"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	TestOps    TestOpsConfig    `yaml:"testops" mapstructure:"testops"`
	Behavior   BehaviorConfig   `yaml:"behavior" mapstructure:"behavior"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
}

// RepositoryConfig describes the version-controlled working copy.
type RepositoryConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	LocalPath      string `yaml:"local_path" mapstructure:"local_path"`
	DefaultBranch  string `yaml:"default_branch" mapstructure:"default_branch"`
	Remote         string `yaml:"remote" mapstructure:"remote"`
	GitServiceName string `yaml:"git_service_name,omitempty" mapstructure:"git_service_name"`
	GitUser        string `yaml:"git_user,omitempty" mapstructure:"git_user"`
	GitPassword    string `yaml:"git_password,omitempty" mapstructure:"git_password"`
}

// TestsConfig locates the check files inside the working copy.
type TestsConfig struct {
	TestsDirectory string `yaml:"tests_directory" mapstructure:"tests_directory"`
	TestFilePrefix string `yaml:"test_file_prefix" mapstructure:"test_file_prefix"`
}

// DatabaseConfig contains connection settings for the checked database.
type DatabaseConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DBServiceName string `yaml:"db_service_name,omitempty" mapstructure:"db_service_name"`
	DefaultDSN    string `yaml:"default_dsn" mapstructure:"default_dsn"`
	DBUser        string `yaml:"db_user,omitempty" mapstructure:"db_user"`
	DBPassword    string `yaml:"db_password,omitempty" mapstructure:"db_password"`
}

// TestOpsConfig contains the test-management service endpoint.
type TestOpsConfig struct {
	ProjectID   string `yaml:"project_id" mapstructure:"project_id"`
	LaunchToken string `yaml:"launch_token,omitempty" mapstructure:"launch_token"`
	URL         string `yaml:"url" mapstructure:"url"`
	Timeout     string `yaml:"timeout" mapstructure:"timeout"`
}

// BehaviorConfig toggles interactive and working-copy behavior.
type BehaviorConfig struct {
	ConfirmBeforePush bool `yaml:"confirm_before_push" mapstructure:"confirm_before_push"`
	AutoStash         bool `yaml:"auto_stash" mapstructure:"auto_stash"`
}

// ReportConfig controls where report documents and the upload bundle live.
type ReportConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	ArchivePath string `yaml:"archive_path" mapstructure:"archive_path"`
	// Owner is an optional "UID:GID" applied to everything written.
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
	// Clean removes documents left over from a previous run before emitting.
	Clean bool `yaml:"clean" mapstructure:"clean"`
}

// ArchiveConfig contains optional long-term storage for upload bundles.
type ArchiveConfig struct {
	S3 S3ArchiveConfig `yaml:"s3" mapstructure:"s3"`
}

// S3ArchiveConfig mirrors each upload bundle to S3-compatible storage.
type S3ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
}

// ConfigError reports a missing or malformed configuration field.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Reason, e.Err)
	}

	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError

	return errors.As(err, &cfgErr)
}

// Load reads the configuration file at path (DefaultConfigFile when empty)
// and applies DUPCHECK_* environment overrides on top of it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Field: path, Reason: "reading config file", Err: err}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Field: path, Reason: "parsing config file", Err: err}
	}

	return &cfg, nil
}

// setDefaults registers every known key so AutomaticEnv can override keys
// that are absent from the file.
func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"repository.url":               "",
		"repository.local_path":        DefaultLocalPath,
		"repository.default_branch":    DefaultBranch,
		"repository.remote":            DefaultRemote,
		"repository.git_service_name":  "",
		"repository.git_user":          "",
		"repository.git_password":      "",
		"tests.tests_directory":        DefaultTestsDirectory,
		"tests.test_file_prefix":       "",
		"database.driver":              DefaultDriver,
		"database.db_service_name":     "",
		"database.default_dsn":         "",
		"database.db_user":             "",
		"database.db_password":         "",
		"testops.project_id":           "",
		"testops.launch_token":         "",
		"testops.url":                  "",
		"testops.timeout":              DefaultTestOpsTimeout,
		"behavior.confirm_before_push": true,
		"behavior.auto_stash":          true,
		"report.dir":                   DefaultReportDir,
		"report.archive_path":          DefaultArchivePath,
		"report.owner":                 "",
		"report.clean":                 true,
		"archive.s3.enabled":           false,
		"archive.s3.endpoint_url":      "",
		"archive.s3.region":            "",
		"archive.s3.bucket":            "",
		"archive.s3.access_key_id":     "",
		"archive.s3.secret_access_key": "",
		"archive.s3.force_path_style":  false,
		"archive.s3.prefix":            DefaultS3Prefix,
		"archive.s3.storage_class":     "",
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// ValidateRepository checks the working copy fields shared by running and
// authoring checks.
func (c *Config) ValidateRepository() error {
	if c.Repository.LocalPath == "" {
		return &ConfigError{Field: "repository.local_path", Reason: "is required"}
	}

	if c.Repository.DefaultBranch == "" {
		return &ConfigError{Field: "repository.default_branch", Reason: "is required"}
	}

	if c.Repository.Remote == "" {
		return &ConfigError{Field: "repository.remote", Reason: "is required"}
	}

	if c.Tests.TestsDirectory == "" {
		return &ConfigError{Field: "tests.tests_directory", Reason: "is required"}
	}

	return nil
}

// Validate checks the fields every pipeline run depends on. Upload
// settings are checked separately by ValidateUpload.
func (c *Config) Validate() error {
	if err := c.ValidateRepository(); err != nil {
		return err
	}

	if c.Database.DefaultDSN == "" {
		return &ConfigError{Field: "database.default_dsn", Reason: "is required"}
	}

	if !isValidDriver(c.Database.Driver) {
		return &ConfigError{
			Field:  "database.driver",
			Reason: fmt.Sprintf("unsupported driver %q", c.Database.Driver),
		}
	}

	if c.Database.Driver == "oracle" && !isOracleDSN(c.Database.DefaultDSN) {
		return &ConfigError{
			Field:  "database.default_dsn",
			Reason: "expected oracle:// URL, (DESCRIPTION=...) descriptor or host[:port]/service; TNS aliases are not resolved",
		}
	}

	if _, err := c.TestOps.RequestTimeout(); err != nil {
		return &ConfigError{Field: "testops.timeout", Reason: "invalid duration", Err: err}
	}

	if c.Report.Dir == "" {
		return &ConfigError{Field: "report.dir", Reason: "is required"}
	}

	if c.Report.ArchivePath == "" {
		return &ConfigError{Field: "report.archive_path", Reason: "is required"}
	}

	if _, err := fsutil.ParseOwner(c.Report.Owner); err != nil {
		return &ConfigError{Field: "report.owner", Reason: "invalid owner", Err: err}
	}

	if c.Archive.S3.Enabled && c.Archive.S3.Bucket == "" {
		return &ConfigError{Field: "archive.s3.bucket", Reason: "is required when archive.s3 is enabled"}
	}

	return nil
}

// ValidateUpload checks the endpoint fields required to send a report bundle.
func (c *TestOpsConfig) ValidateUpload() error {
	if c.URL == "" {
		return &ConfigError{Field: "testops.url", Reason: "is required for upload"}
	}

	if c.ProjectID == "" {
		return &ConfigError{Field: "testops.project_id", Reason: "is required for upload"}
	}

	if c.LaunchToken == "" {
		return &ConfigError{Field: "testops.launch_token", Reason: "is required for upload"}
	}

	return nil
}

// RequestTimeout returns the parsed upload timeout.
func (c *TestOpsConfig) RequestTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return time.ParseDuration(DefaultTestOpsTimeout)
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, err
	}

	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	return d, nil
}

// validDrivers is the list of supported database drivers.
var validDrivers = map[string]struct{}{
	"oracle":   {},
	"postgres": {},
	"sqlite":   {},
}

// isOracleDSN reports whether dsn has a form the oracle connector can dial.
func isOracleDSN(dsn string) bool {
	dsn = strings.TrimSpace(dsn)

	if strings.HasPrefix(dsn, "oracle://") || strings.HasPrefix(dsn, "(") {
		return true
	}

	hostPort, service, ok := strings.Cut(dsn, "/")

	return ok && hostPort != "" && service != ""
}

func isValidDriver(driver string) bool {
	_, ok := validDrivers[driver]

	return ok
}

const redacted = "<redacted>"

// Redacted returns a copy of the configuration with secret values masked.
func (c *Config) Redacted() *Config {
	out := *c

	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}

	mask(&out.Repository.GitPassword)
	mask(&out.Database.DBPassword)
	mask(&out.TestOps.LaunchToken)
	mask(&out.Archive.S3.SecretAccessKey)

	return &out
}
