// Package cfg loads the update-branch configuration.
//
// The configuration is read from an optional TOML file and from GitHub Action
// inputs passed as INPUT_* environment variables. Non-empty action inputs
// take precedence over values of the file.
package cfg

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/sethvargo/go-githubactions"

	"github.com/simplesurance/update-branch/internal/githubclt"
)

var (
	ErrMissingToken      = errors.New("github api token is not set")
	ErrMissingRepository = errors.New("repository owner or name is not set")
)

const (
	DefaultLogFormat   = "logfmt"
	DefaultLogTimeKey  = "time_iso8601"
	DefaultLogLevel    = "info"
	DefaultMergeMethod = string(githubclt.MergeMethodMerge)
)

type Config struct {
	GithubAPIToken       string           `toml:"github_api_token"`
	Repository           GithubRepository `toml:"repository"`
	AutoMergeMethod      string           `toml:"auto_merge_method"`
	RequiredApprovals    int              `toml:"required_approvals"`
	RequiredStatusChecks []string         `toml:"required_status_checks"`
	RequiredLabels       []string         `toml:"required_labels"`
	FilterQuery          string           `toml:"filter_query"`
	LogFormat            string           `toml:"log_format"`
	LogTimeKey           string           `toml:"log_time_key"`
	LogLevel             string           `toml:"log_level"`
}

type GithubRepository struct {
	Owner          string `toml:"owner"`
	RepositoryName string `toml:"name"`
}

func (r *GithubRepository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.RepositoryName)
}

// Default returns a Config with default values.
func Default() *Config {
	var result Config
	result.setDefaults()

	return &result
}

func (c *Config) setDefaults() {
	if c.AutoMergeMethod == "" {
		c.AutoMergeMethod = DefaultMergeMethod
	}

	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}

	if c.LogTimeKey == "" {
		c.LogTimeKey = DefaultLogTimeKey
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Load reads a TOML configuration from reader, unset values have their
// default value.
func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.setDefaults()

	return &result, nil
}

// ApplyActionInputs overwrites values with GitHub Action inputs and the
// repository of the workflow run.
// getenv is used to retrieve environment variables, it is usually
// os.Getenv.
func (c *Config) ApplyActionInputs(getenv func(string) string) error {
	action := githubactions.New(githubactions.WithGetenv(getenv))

	if v := action.GetInput("token"); v != "" {
		c.GithubAPIToken = v
	}

	if v := action.GetInput("autoMergeMethod"); v != "" {
		c.AutoMergeMethod = v
	}

	if v := action.GetInput("requiredApprovals"); v != "" {
		approvals, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing requiredApprovals input failed: %w", err)
		}

		c.RequiredApprovals = approvals
	}

	if v := action.GetInput("requiredStatusChecks"); v != "" {
		c.RequiredStatusChecks = SplitLines(v)
	}

	if v := action.GetInput("requiredLabels"); v != "" {
		c.RequiredLabels = SplitLines(v)
	}

	if v := strings.TrimSpace(getenv("GITHUB_REPOSITORY")); v != "" {
		owner, name, found := strings.Cut(v, "/")
		if !found {
			return fmt.Errorf("GITHUB_REPOSITORY environment variable has invalid format: %q, expecting <OWNER>/<REPOSITORY>", v)
		}

		c.Repository = GithubRepository{Owner: owner, RepositoryName: name}
	}

	return nil
}

// SplitLines splits s by newlines and removes empty lines.
func SplitLines(s string) []string {
	var result []string

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		result = append(result, line)
	}

	return result
}

// Validate returns an error if the configuration is incomplete or invalid.
func (c *Config) Validate() error {
	if c.GithubAPIToken == "" {
		return ErrMissingToken
	}

	if c.Repository.Owner == "" || c.Repository.RepositoryName == "" {
		return ErrMissingRepository
	}

	if c.RequiredApprovals < 0 {
		return fmt.Errorf("required approvals is %d, must be >=0", c.RequiredApprovals)
	}

	if _, err := githubclt.ParseMergeMethod(c.AutoMergeMethod); err != nil {
		return err
	}

	return nil
}
