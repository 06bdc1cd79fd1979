// 包 config 负责加载与校验 settings.yaml：
// - .env 与 BLOGHUB_* 环境变量覆盖文件中的值
// - Validate 之后调用方无需再检查默认值
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFetchLimit     = 50
	DefaultFetchTimeout   = 30 // 秒
	DefaultWorkers        = 4
	DefaultExportMaxPosts = 150
)

type Config struct {
	Sources        []Source    `yaml:"SOURCES"`
	Categories     []Category  `yaml:"CATEGORIES"`
	FetchLimit     int         `yaml:"FETCH_LIMIT"`
	FetchTimeout   int         `yaml:"FETCH_TIMEOUT"` // 每个来源的秒数
	SimpleMode     bool        `yaml:"SIMPLE_MODE"`
	EnrichSources  bool        `yaml:"ENRICH_SOURCES"`
	EnrichRules    EnrichRules `yaml:"ENRICH_RULES"`
	ExportMaxPosts int         `yaml:"EXPORT_MAX_POSTS"`
	Database       Database    `yaml:"DATABASE"`
	Concurrency    Concurrency `yaml:"CONCURRENCY"`
	Proxy          Proxy       `yaml:"PROXY"`
	UserAgent      string      `yaml:"USER_AGENT"`
	LogLevel       string      `yaml:"LOG_LEVEL"`
	LogFormat      string      `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale      string      `yaml:"LOG_LOCALE"` // en|zh-CN
	LogColor       string      `yaml:"LOG_COLOR"`  // auto|always|never
}

// Source 为配置中声明的订阅来源，未填写 active 时视为启用。
type Source struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	FeedURL     string `yaml:"feed_url"`
	HomepageURL string `yaml:"homepage_url"`
	LogoURL     string `yaml:"logo_url"`
	Author      string `yaml:"author"`
	Language    string `yaml:"language"`
	Tags        string `yaml:"tags"`
	Category    string `yaml:"category"` // 分类 slug
	Active      *bool  `yaml:"active"`
}

// IsActive 返回生效的启用状态。
func (s Source) IsActive() bool { return s.Active == nil || *s.Active }

type Category struct {
	Name  string `yaml:"name"`
	Slug  string `yaml:"slug"`
	Color string `yaml:"color"`
	Icon  string `yaml:"icon"`
}

// EnrichRules 覆盖主页元数据的选择器表达式：
// "sel@attr" 读属性，"sel" 读文本，"||" 分隔备选。
type EnrichRules struct {
	Description string `yaml:"description"`
	Logo        string `yaml:"logo"`
}

type Database struct {
	Type string `yaml:"type"` // sqlite（默认）| postgres
	DSN  string `yaml:"dsn"`
}

type Concurrency struct {
	Fetch int `yaml:"fetch"`
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

// Timeout 返回单个来源的抓取超时。
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// Load 先读取工作目录下的 .env，再读取 path 处的 YAML，应用环境变量覆盖后校验。
func Load(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BLOGHUB_DB_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("BLOGHUB_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("BLOGHUB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BLOGHUB_UA"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("BLOGHUB_FETCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BLOGHUB_FETCH_LIMIT: %w", err)
		}
		c.FetchLimit = n
	}
	return nil
}

// Validate 校验取值并填充默认值。
func (c *Config) Validate() error {
	if c.FetchLimit < 0 {
		return errors.New("FETCH_LIMIT must be >= 0")
	}
	if c.FetchLimit == 0 {
		c.FetchLimit = DefaultFetchLimit
	}
	if c.FetchTimeout < 0 {
		return errors.New("FETCH_TIMEOUT must be >= 0")
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.ExportMaxPosts < 0 {
		return errors.New("EXPORT_MAX_POSTS must be >= 0")
	}
	if c.ExportMaxPosts == 0 {
		c.ExportMaxPosts = DefaultExportMaxPosts
	}
	c.Database.Type = strings.ToLower(strings.TrimSpace(c.Database.Type))
	switch c.Database.Type {
	case "":
		c.Database.Type = "sqlite"
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		if c.Database.Type == "postgres" {
			return errors.New("DATABASE.dsn is required for postgres")
		}
		c.Database.DSN = "./bloghub.db"
	}
	if c.Concurrency.Fetch <= 0 {
		c.Concurrency.Fetch = DefaultWorkers
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "en"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	slugs := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if strings.TrimSpace(cat.Slug) == "" {
			return fmt.Errorf("CATEGORIES[%d]: slug is required", i)
		}
		slugs[cat.Slug] = true
	}
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("SOURCES[%d]: name is required", i)
		}
		if err := ValidateFeedURL(s.FeedURL); err != nil {
			return fmt.Errorf("SOURCES[%d] %q: %w", i, s.Name, err)
		}
		if s.Category != "" && !slugs[s.Category] {
			return fmt.Errorf("SOURCES[%d] %q: unknown category %q", i, s.Name, s.Category)
		}
	}
	return nil
}

// ValidateFeedURL 只接受绝对的 http(s) 地址。
func ValidateFeedURL(raw string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid feed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("feed URL %q has no host", raw)
	}
	return nil
}
