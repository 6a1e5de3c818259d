package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultNotionBaseURL = "https://api.notion.com/v1"
	DefaultBaseBranch    = "main"
	DefaultTimezone      = "UTC"
)

// Config represents the complete notion2blog configuration
type Config struct {
	Notion NotionConfig  `yaml:"notion"`
	Props  PropertyNames `yaml:"property_names"`
	GitHub GitHubConfig  `yaml:"github"`
	Blog   BlogConfig    `yaml:"blog"`
	Sync   SyncConfig    `yaml:"sync"`
	Serve  ServeConfig   `yaml:"serve"`
}

// NotionConfig configures the document database source
type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
	BaseURL    string `yaml:"base_url"`
}

// PropertyNames holds the database property names used for filtering and
// field extraction. None of them are hardcoded.
type PropertyNames struct {
	Permalink       string `yaml:"permalink"`
	Tag             string `yaml:"tag"`
	Category        string `yaml:"category"`
	ExcludeCheckbox string `yaml:"exclude_checkbox"`
	IncludeCheckbox string `yaml:"include_checkbox"`
}

// GitHubConfig configures the blog repository and forge access
type GitHubConfig struct {
	Repo       string `yaml:"repo"`
	PAT        string `yaml:"pat"`
	BaseBranch string `yaml:"base_branch"`
	SSHKeyFile string `yaml:"ssh_key_file"`
	// APIURL overrides the REST API root, e.g. for GitHub Enterprise.
	APIURL string `yaml:"api_url"`
}

// BlogConfig configures where posts and assets live inside the blog repository
type BlogConfig struct {
	AssetDir string `yaml:"asset_dir"`
	PostDir  string `yaml:"post_dir"`
}

// SyncConfig configures run behavior
type SyncConfig struct {
	WorkDir  string `yaml:"work_dir"`
	Timezone string `yaml:"timezone"`
}

// ServeConfig configures the trigger server
type ServeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	SecretFile string `yaml:"secret_file"`
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads the optional configuration file at path, applies environment
// overrides from the process environment, fills defaults and validates.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	var cfg Config

	if path != "" {
		path = os.ExpandEnv(path)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			cfg.expandEnv()
		case errors.Is(err, os.ErrNotExist):
			// environment-only configuration
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.applyEnv(lookup)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if id, err := uuid.Parse(cfg.Notion.DatabaseID); err == nil {
		cfg.Notion.DatabaseID = id.String()
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields read from file
func (c *Config) expandEnv() {
	for _, s := range c.stringFields() {
		*s = os.ExpandEnv(*s)
	}
}

func (c *Config) stringFields() []*string {
	return []*string{
		&c.Notion.Token, &c.Notion.DatabaseID, &c.Notion.BaseURL,
		&c.Props.Permalink, &c.Props.Tag, &c.Props.Category,
		&c.Props.ExcludeCheckbox, &c.Props.IncludeCheckbox,
		&c.GitHub.Repo, &c.GitHub.PAT, &c.GitHub.BaseBranch, &c.GitHub.SSHKeyFile, &c.GitHub.APIURL,
		&c.Blog.AssetDir, &c.Blog.PostDir,
		&c.Sync.WorkDir, &c.Sync.Timezone,
		&c.Serve.ListenAddr, &c.Serve.SecretFile,
	}
}

// applyEnv overrides file values with any set environment variable.
func (c *Config) applyEnv(lookup LookupFunc) {
	overrides := map[string]*string{
		"NOTION_TOKEN":                    &c.Notion.Token,
		"DATABASE_ID":                     &c.Notion.DatabaseID,
		"NOTION_BASE_URL":                 &c.Notion.BaseURL,
		"PROP_NAME_PERMALINK":             &c.Props.Permalink,
		"PROP_NAME_TAG":                   &c.Props.Tag,
		"PROP_NAME_CATEGORY":              &c.Props.Category,
		"PROP_NAME_EXCLUDE":               &c.Props.ExcludeCheckbox,
		"PROP_NAME_INCLUDE":               &c.Props.IncludeCheckbox,
		"GITHUB_REPO":                     &c.GitHub.Repo,
		"GITHUB_PAT":                      &c.GitHub.PAT,
		"BLOG_BASE_BRANCH":                &c.GitHub.BaseBranch,
		"GIT_SSH_KEY_FILE":                &c.GitHub.SSHKeyFile,
		"GITHUB_API_URL":                  &c.GitHub.APIURL,
		"BLOG_ASSET_DIR":                  &c.Blog.AssetDir,
		"BLOG_POST_DIR":                   &c.Blog.PostDir,
		"NOTION2BLOG_WORK_DIR":            &c.Sync.WorkDir,
		"NOTION2BLOG_TIMEZONE":            &c.Sync.Timezone,
		"NOTION2BLOG_TRIGGER_ADDR":        &c.Serve.ListenAddr,
		"NOTION2BLOG_TRIGGER_SECRET_FILE": &c.Serve.SecretFile,
	}
	for key, field := range overrides {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = DefaultNotionBaseURL
	}
	if c.GitHub.BaseBranch == "" {
		c.GitHub.BaseBranch = DefaultBaseBranch
	}
	if c.Sync.Timezone == "" {
		c.Sync.Timezone = DefaultTimezone
	}
	if c.Sync.WorkDir == "" {
		c.Sync.WorkDir = os.TempDir()
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Notion,
		validation.Field(&c.Notion.Token, validation.Required),
		validation.Field(&c.Notion.DatabaseID, validation.Required, validation.By(databaseID)),
		validation.Field(&c.Notion.BaseURL, validation.Required),
	); err != nil {
		return fmt.Errorf("notion: %w", err)
	}

	if err := validation.ValidateStruct(&c.Props,
		validation.Field(&c.Props.Permalink, validation.Required),
		validation.Field(&c.Props.Tag, validation.Required),
		validation.Field(&c.Props.Category, validation.Required),
		validation.Field(&c.Props.ExcludeCheckbox, validation.Required),
		validation.Field(&c.Props.IncludeCheckbox, validation.Required),
	); err != nil {
		return fmt.Errorf("property_names: %w", err)
	}

	if err := validation.ValidateStruct(&c.GitHub,
		validation.Field(&c.GitHub.Repo, validation.Required, validation.By(repoURL)),
		validation.Field(&c.GitHub.PAT, validation.Required),
		validation.Field(&c.GitHub.BaseBranch, validation.Required),
		validation.Field(&c.GitHub.APIURL, is.URL),
	); err != nil {
		return fmt.Errorf("github: %w", err)
	}

	if err := validation.ValidateStruct(&c.Sync,
		validation.Field(&c.Sync.Timezone, validation.By(timezone)),
	); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if c.Serve.ListenAddr != "" && c.Serve.SecretFile == "" {
		return fmt.Errorf("serve.secret_file is required when serve.listen_addr is set")
	}

	return nil
}

func databaseID(value any) error {
	s, _ := value.(string)
	if _, err := uuid.Parse(s); err != nil {
		return validation.NewError("validation_database_id", "must be a database id (uuid, with or without dashes)")
	}
	return nil
}

func repoURL(value any) error {
	s, _ := value.(string)
	if !isHTTPS(s) && !isSSH(s) {
		return validation.NewError("validation_repo_url", "must be an https:// or ssh repository url")
	}
	return nil
}

func timezone(value any) error {
	s, _ := value.(string)
	if _, err := time.LoadLocation(s); err != nil {
		return validation.NewError("validation_timezone", "must be a valid IANA time zone")
	}
	return nil
}

// Location returns the time zone used to format document timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RepoName returns the repository name derived from the repo URL, or an
// empty string when the URL carries no repository path.
func (c *Config) RepoName() string {
	_, name := splitRepo(c.GitHub.Repo)
	return name
}

// RepoOwner returns the account owning the repository, or an empty string.
func (c *Config) RepoOwner() string {
	owner, _ := splitRepo(c.GitHub.Repo)
	return owner
}

// IsHTTPS returns true if the repo URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return isHTTPS(c.GitHub.Repo)
}

// IsSSH returns true if the repo URL uses SSH
func (c *Config) IsSSH() bool {
	return isSSH(c.GitHub.Repo)
}

// TriggerEnabled reports whether the trigger server can run, i.e. a secret
// file for request signatures is configured. The listen address may come
// from socket activation instead of serve.listen_addr.
func (c *Config) TriggerEnabled() bool {
	return c.Serve.SecretFile != ""
}

func isHTTPS(s string) bool {
	return strings.HasPrefix(s, "https://")
}

func isSSH(s string) bool {
	return strings.HasPrefix(s, "git@") || strings.HasPrefix(s, "ssh://")
}

func splitRepo(repo string) (owner, name string) {
	var p string
	switch {
	case strings.HasPrefix(repo, "git@"):
		_, rest, ok := strings.Cut(repo, ":")
		if !ok {
			return "", ""
		}
		p = rest
	default:
		u, err := url.Parse(repo)
		if err != nil || u.Host == "" {
			return "", ""
		}
		p = u.Path
	}

	segments := strings.Split(strings.Trim(p, "/"), "/")
	if len(segments) == 0 || segments[len(segments)-1] == "" {
		return "", ""
	}
	name = strings.TrimSuffix(segments[len(segments)-1], ".git")
	if len(segments) > 1 {
		owner = segments[len(segments)-2]
	}
	return owner, name
}
