package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// SourceType constants select the adapter implementation for a source
const (
	SourceTypeAdzuna      = "adzuna"     // Aggregator JSON API, app_id/app_key auth, page-number pagination
	SourceTypeGreenhouse  = "greenhouse" // Public board JSON API, single fetch per board
	SourceTypeLever       = "lever"      // Public postings JSON API, skip/limit pagination
	SourceTypeHTMLBoard   = "html"       // Careers-page scraper driven by CSS selectors
	SourceTypeGitHub      = "github"     // Issues-as-job-board repositories
	SourceTypeEmailAlerts = "email"      // Job-alert inbox over IMAP
)

// validTypes is the closed set accepted by Validate
var validSourceTypes = map[string]bool{
	SourceTypeAdzuna:      true,
	SourceTypeGreenhouse:  true,
	SourceTypeLever:       true,
	SourceTypeHTMLBoard:   true,
	SourceTypeGitHub:      true,
	SourceTypeEmailAlerts: true,
}

// QuerySpec is one keyword/location search a source runs per ingestion run.
// Sources that do not support server-side search (greenhouse, lever, github,
// email) ignore it and fetch their full listing instead.
type QuerySpec struct {
	Keywords string `yaml:"keywords" json:"keywords"`
	Location string `yaml:"location" json:"location"`
}

// SourceAuth carries per-source credentials. Values are never serialized out
// through the API.
type SourceAuth struct {
	AppID    string            `yaml:"app_id" json:"-"`   // adzuna application id
	AppKey   string            `yaml:"app_key" json:"-"`  // adzuna application key
	Token    string            `yaml:"token" json:"-"`    // github personal access token / bearer token
	Username string            `yaml:"username" json:"-"` // imap login
	Password string            `yaml:"password" json:"-"` // imap password or app password
	Headers  map[string]string `yaml:"headers" json:"-"`  // static request headers for html sources
}

// HTMLOptions configures the html source type's selector-driven extraction
type HTMLOptions struct {
	ItemSelector        string `yaml:"item_selector" json:"item_selector" validate:"required"`
	TitleSelector       string `yaml:"title_selector" json:"title_selector" validate:"required"`
	CompanySelector     string `yaml:"company_selector" json:"company_selector"`  // Empty: use source display name
	LocationSelector    string `yaml:"location_selector" json:"location_selector"`
	URLSelector         string `yaml:"url_selector" json:"url_selector"` // href is read from the matched element
	DescriptionSelector string `yaml:"description_selector" json:"description_selector"`
	NextPageSelector    string `yaml:"next_page_selector" json:"next_page_selector"` // Empty: a[rel=next]
	RenderJS            bool   `yaml:"render_js" json:"render_js"`                   // Headless-render the page before parsing
}

// GitHubOptions configures the github source type
type GitHubOptions struct {
	Owner  string   `yaml:"owner" json:"owner" validate:"required"`
	Repo   string   `yaml:"repo" json:"repo" validate:"required"`
	Labels []string `yaml:"labels" json:"labels"` // Issue labels that mark job postings, e.g. ["hiring"]
}

// EmailOptions configures the email source type
type EmailOptions struct {
	Host          string `yaml:"host" json:"host" validate:"required"`
	Port          int    `yaml:"port" json:"port"`                     // 0: default 993
	Mailbox       string `yaml:"mailbox" json:"mailbox"`               // Empty: INBOX
	FromFilter    string `yaml:"from_filter" json:"from_filter"`       // Only read alerts from this sender
	UseTLS        *bool  `yaml:"use_tls" json:"use_tls"`               // nil: true
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`         // Messages per fetch window, 0: 50
	BlockSelector string `yaml:"block_selector" json:"block_selector"` // CSS selector splitting an alert into postings
	TitleSelector string `yaml:"title_selector" json:"title_selector"`
	URLSelector   string `yaml:"url_selector" json:"url_selector"`
}

// SourceDefinition describes one registered external job board. Definitions
// are loaded from YAML files at startup and are read-only afterwards except
// for circuit-breaker state, which lives in the registry.
type SourceDefinition struct {
	Name        string  `yaml:"name" json:"name" validate:"required"`
	Type        string  `yaml:"type" json:"type" validate:"required"`
	DisplayName string  `yaml:"display_name" json:"display_name"` // Company/board name for single-company sources
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	BaseURL     string  `yaml:"base_url" json:"base_url"` // API host or page URL; adapter-specific default when empty
	Board       string  `yaml:"board" json:"board"`       // greenhouse board token / lever site slug
	MaxPages    int     `yaml:"max_pages" json:"max_pages" validate:"gte=0"`   // 0: use the global default
	RateLimit   float64 `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"` // Requests per second, 0: adapter default

	Queries []QuerySpec `yaml:"queries" json:"queries"`
	Auth    SourceAuth  `yaml:"auth" json:"auth"`

	HTML   *HTMLOptions   `yaml:"html" json:"html,omitempty"`
	GitHub *GitHubOptions `yaml:"github" json:"github,omitempty"`
	Email  *EmailOptions  `yaml:"email" json:"email,omitempty"`

	CreatedAt time.Time `yaml:"-" json:"created_at"`
}

var validate = validator.New()

// Validate validates the source definition, including per-type requirements
func (s *SourceDefinition) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("source %q: %w", s.Name, err)
	}

	if !validSourceTypes[s.Type] {
		return fmt.Errorf("source %q: invalid source type: %s", s.Name, s.Type)
	}

	switch s.Type {
	case SourceTypeAdzuna:
		if s.Auth.AppID == "" || s.Auth.AppKey == "" {
			return fmt.Errorf("source %q: adzuna sources require auth.app_id and auth.app_key", s.Name)
		}
		if len(s.Queries) == 0 {
			return fmt.Errorf("source %q: adzuna sources require at least one query", s.Name)
		}
	case SourceTypeGreenhouse:
		if s.Board == "" {
			return fmt.Errorf("source %q: greenhouse sources require a board token", s.Name)
		}
	case SourceTypeLever:
		if s.Board == "" {
			return fmt.Errorf("source %q: lever sources require a site slug", s.Name)
		}
	case SourceTypeHTMLBoard:
		if s.BaseURL == "" {
			return fmt.Errorf("source %q: html sources require a base_url", s.Name)
		}
		if s.HTML == nil {
			return fmt.Errorf("source %q: html sources require an html options block", s.Name)
		}
		if err := validate.Struct(s.HTML); err != nil {
			return fmt.Errorf("source %q: html options: %w", s.Name, err)
		}
	case SourceTypeGitHub:
		if s.GitHub == nil {
			return fmt.Errorf("source %q: github sources require a github options block", s.Name)
		}
		if err := validate.Struct(s.GitHub); err != nil {
			return fmt.Errorf("source %q: github options: %w", s.Name, err)
		}
	case SourceTypeEmailAlerts:
		if s.Email == nil {
			return fmt.Errorf("source %q: email sources require an email options block", s.Name)
		}
		if err := validate.Struct(s.Email); err != nil {
			return fmt.Errorf("source %q: email options: %w", s.Name, err)
		}
		if s.Auth.Username == "" || s.Auth.Password == "" {
			return fmt.Errorf("source %q: email sources require auth.username and auth.password", s.Name)
		}
	}

	return nil
}

// CompanyName returns the display name used when a source represents a single
// company's board and the raw payload carries no company field.
func (s *SourceDefinition) CompanyName() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}
