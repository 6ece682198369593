package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ashosive/agent-runtime/internal/inference"
	"github.com/ashosive/agent-runtime/internal/logging"
	"github.com/ashosive/agent-runtime/internal/provider"
	"github.com/ashosive/agent-runtime/internal/session"
)

// FileBase is the base name of config files; the extension selects the format.
const FileBase = "agentd"

// Extensions are the config file extensions in load order.
var Extensions = []string{".json", ".jsonc", ".yaml", ".yml"}

// Config is the agentd configuration.
type Config struct {
	Backend BackendConfig `json:"backend" yaml:"backend"`
	// Backends are additional backends reachable through "name/model" ids.
	Backends     []BackendConfig `json:"backends,omitempty" yaml:"backends,omitempty"`
	DefaultModel string          `json:"default_model,omitempty" yaml:"default_model,omitempty"`

	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Pool     PoolConfig     `json:"pool" yaml:"pool"`
	Registry RegistryConfig `json:"registry" yaml:"registry"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// BackendConfig selects an inference backend.
type BackendConfig struct {
	// Name is the model prefix that routes to this backend. Defaults to Kind.
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	Kind      string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	BaseURL   string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey    string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model     string   `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Timeout   Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// PipelineConfig tunes the per-session inference pipeline.
type PipelineConfig struct {
	PollInterval      Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	InactivityTimeout Duration `json:"inactivity_timeout,omitempty" yaml:"inactivity_timeout,omitempty"`
	FallbackTokens    int      `json:"fallback_tokens,omitempty" yaml:"fallback_tokens,omitempty"`
	FallbackInterval  Duration `json:"fallback_interval,omitempty" yaml:"fallback_interval,omitempty"`
}

// PoolConfig bounds the number of pipelines running at once. Zero is unbounded.
type PoolConfig struct {
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

type RegistryConfig struct {
	Shards int `json:"shards,omitempty" yaml:"shards,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string   `json:"host,omitempty" yaml:"host,omitempty"`
	Port int      `json:"port,omitempty" yaml:"port,omitempty"`
	CORS []string `json:"cors,omitempty" yaml:"cors,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty" yaml:"pretty,omitempty"`
	File   bool   `json:"file,omitempty" yaml:"file,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("100s").
// Bare numbers are read as seconds.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(v * float64(time.Second))
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// ParseDuration parses a Go duration string or a number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind:      provider.KindOllama,
			Timeout:   Duration(600 * time.Second),
			MaxTokens: int(session.DefaultMaxTokens),
		},
		Pipeline: PipelineConfig{
			PollInterval:      Duration(inference.DefaultPollInterval),
			InactivityTimeout: Duration(inference.DefaultInactivityTimeout),
			FallbackTokens:    inference.DefaultFallbackTokens,
			FallbackInterval:  Duration(inference.DefaultFallbackInterval),
		},
		Registry: RegistryConfig{Shards: session.DefaultShards},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config ($XDG_CONFIG_HOME/agent-runtime/agentd.*)
// 3. Project config (<directory>/agentd.*)
// 4. AGENTD_CONFIG file
// 5. <directory>/.env, which never overrides variables already set
// 6. AGENTD_* environment variables
func Load(directory string) (*Config, error) {
	config := Default()

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, required bool) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config)
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	for _, path := range Candidates(directory) {
		if err := loadOnce(path, false); err != nil {
			return nil, err
		}
	}

	if configPath := os.Getenv("AGENTD_CONFIG"); configPath != "" {
		if err := loadOnce(configPath, true); err != nil {
			return nil, err
		}
	}

	if directory != "" {
		envFile := filepath.Join(directory, ".env")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", envFile).Msg("failed to read .env")
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Candidates returns the global and project config file paths Load reads,
// in load order.
func Candidates(directory string) []string {
	var paths []string
	for _, ext := range Extensions {
		paths = append(paths, filepath.Join(GetPaths().Config, FileBase+ext))
	}
	if directory != "" {
		for _, ext := range Extensions {
			paths = append(paths, filepath.Join(directory, FileBase+ext))
		}
	}
	return paths
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fileConfig, err := parse(data, path)
	if err != nil {
		return err
	}

	mergeConfig(config, fileConfig)
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// parse decodes data in the format selected by path's extension.
func parse(data []byte, path string) (*Config, error) {
	baseDir := filepath.Dir(path)
	var fileConfig Config

	if isYAML(path) {
		data = interpolate(data, baseDir, strings.TrimSpace)
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, err
		}
		return &fileConfig, nil
	}

	// Strip JSONC comments and trailing commas
	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir, escapeJSON)
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, err
	}
	return &fileConfig, nil
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate processes {env:VAR} and {file:path} placeholders. File
// contents are passed through escape before substitution.
func interpolate(data []byte, baseDir string, escape func(string) string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}
		return escape(strings.TrimRight(string(content), "\r\n"))
	})

	return []byte(str)
}

func escapeJSON(s string) string {
	escaped := strings.ReplaceAll(s, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	escaped = strings.ReplaceAll(escaped, "\n", "\\n")
	escaped = strings.ReplaceAll(escaped, "\r", "\\r")
	escaped = strings.ReplaceAll(escaped, "\t", "\\t")
	return escaped
}

// mergeConfig merges source config into target. Zero values in source leave
// target untouched.
func mergeConfig(target, source *Config) {
	mergeBackend(&target.Backend, source.Backend)

	if len(source.Backends) > 0 {
		target.Backends = append(target.Backends, source.Backends...)
	}
	if source.DefaultModel != "" {
		target.DefaultModel = source.DefaultModel
	}

	// Pipeline
	if source.Pipeline.PollInterval > 0 {
		target.Pipeline.PollInterval = source.Pipeline.PollInterval
	}
	if source.Pipeline.InactivityTimeout > 0 {
		target.Pipeline.InactivityTimeout = source.Pipeline.InactivityTimeout
	}
	if source.Pipeline.FallbackTokens > 0 {
		target.Pipeline.FallbackTokens = source.Pipeline.FallbackTokens
	}
	if source.Pipeline.FallbackInterval > 0 {
		target.Pipeline.FallbackInterval = source.Pipeline.FallbackInterval
	}

	if source.Pool.MaxConcurrent > 0 {
		target.Pool.MaxConcurrent = source.Pool.MaxConcurrent
	}
	if source.Registry.Shards > 0 {
		target.Registry.Shards = source.Registry.Shards
	}

	// Server
	if source.Server.Host != "" {
		target.Server.Host = source.Server.Host
	}
	if source.Server.Port != 0 {
		target.Server.Port = source.Server.Port
	}
	if len(source.Server.CORS) > 0 {
		target.Server.CORS = source.Server.CORS
	}

	// Log
	if source.Log.Level != "" {
		target.Log.Level = source.Log.Level
	}
	if source.Log.Pretty {
		target.Log.Pretty = true
	}
	if source.Log.File {
		target.Log.File = true
	}
}

func mergeBackend(target *BackendConfig, source BackendConfig) {
	if source.Kind != "" && source.Kind != target.Kind {
		// A different backend kind does not inherit the previous one's endpoint or key.
		target.BaseURL = ""
		target.APIKey = ""
		target.Kind = source.Kind
	}
	if source.Name != "" {
		target.Name = source.Name
	}
	if source.BaseURL != "" {
		target.BaseURL = source.BaseURL
	}
	if source.APIKey != "" {
		target.APIKey = source.APIKey
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.MaxTokens > 0 {
		target.MaxTokens = source.MaxTokens
	}
	if source.Timeout > 0 {
		target.Timeout = source.Timeout
	}
}

// providerKeyEnv maps backend kinds to the vendor variables holding their keys.
var providerKeyEnv = map[string]string{
	provider.KindOpenAI: "OPENAI_API_KEY",
	provider.KindClaude: "ANTHROPIC_API_KEY",
	provider.KindArk:    "ARK_API_KEY",
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", name, v)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *Duration) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = Duration(d)
		return nil
	}

	if kind := os.Getenv("AGENTD_BACKEND"); kind != "" {
		mergeBackend(&config.Backend, BackendConfig{Kind: kind})
	}
	str("AGENTD_BASE_URL", &config.Backend.BaseURL)
	str("AGENTD_API_KEY", &config.Backend.APIKey)
	str("AGENTD_MODEL", &config.Backend.Model)
	str("AGENTD_DEFAULT_MODEL", &config.DefaultModel)
	str("AGENTD_HOST", &config.Server.Host)
	str("AGENTD_LOG_LEVEL", &config.Log.Level)

	for name, dst := range map[string]*int{
		"AGENTD_MAX_TOKENS":      &config.Backend.MaxTokens,
		"AGENTD_PORT":            &config.Server.Port,
		"AGENTD_MAX_CONCURRENT":  &config.Pool.MaxConcurrent,
		"AGENTD_SHARDS":          &config.Registry.Shards,
		"AGENTD_FALLBACK_TOKENS": &config.Pipeline.FallbackTokens,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*Duration{
		"AGENTD_TIMEOUT":            &config.Backend.Timeout,
		"AGENTD_POLL_INTERVAL":      &config.Pipeline.PollInterval,
		"AGENTD_INACTIVITY_TIMEOUT": &config.Pipeline.InactivityTimeout,
		"AGENTD_FALLBACK_INTERVAL":  &config.Pipeline.FallbackInterval,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}

	if cors := os.Getenv("AGENTD_CORS"); cors != "" {
		config.Server.CORS = strings.Split(cors, ",")
	}

	// Vendor keys only fill a missing key
	if config.Backend.APIKey == "" {
		if envVar, ok := providerKeyEnv[config.Backend.Kind]; ok {
			config.Backend.APIKey = os.Getenv(envVar)
		}
	}
	if config.Backend.BaseURL == "" && config.Backend.Kind == provider.KindOllama {
		config.Backend.BaseURL = os.Getenv("OLLAMA_HOST")
	}
	return nil
}

// Validate reports configuration values agentd cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(b BackendConfig, where string) {
		switch b.Kind {
		case "", provider.KindOllama, provider.KindOpenAI, provider.KindClaude, "anthropic", provider.KindArk:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown backend kind %q", where, b.Kind))
		}
		if b.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("%s: max_tokens must not be negative", where))
		}
		if strings.Contains(b.Name, "/") {
			errs = append(errs, fmt.Errorf("%s: name %q must not contain '/'", where, b.Name))
		}
	}
	check(c.Backend, "backend")
	for i, b := range c.Backends {
		check(b, fmt.Sprintf("backends[%d]", i))
	}

	seen := map[string]string{c.Backend.ProviderConfig().RegistryName(): "backend"}
	for i, b := range c.Backends {
		where := fmt.Sprintf("backends[%d]", i)
		name := b.ProviderConfig().RegistryName()
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s: backend name %q already used by %s; set a distinct name", where, name, prev))
			continue
		}
		seen[name] = where
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server: port %d out of range", c.Server.Port))
	}
	if c.Pool.MaxConcurrent < 0 {
		errs = append(errs, errors.New("pool: max_concurrent must not be negative"))
	}
	if c.Registry.Shards < 0 {
		errs = append(errs, errors.New("registry: shards must not be negative"))
	}
	return errors.Join(errs...)
}

// ProviderConfig converts a backend entry for provider.New.
func (b BackendConfig) ProviderConfig() provider.Config {
	return provider.Config{
		Name:      b.Name,
		Kind:      b.Kind,
		BaseURL:   b.BaseURL,
		APIKey:    b.APIKey,
		Model:     b.Model,
		MaxTokens: b.MaxTokens,
		Timeout:   b.Timeout.D(),
	}
}

// InferencePipeline converts the pipeline section for inference.NewPipeline.
func (c *Config) InferencePipeline() inference.PipelineConfig {
	return inference.PipelineConfig{
		PollInterval:      c.Pipeline.PollInterval.D(),
		InactivityTimeout: c.Pipeline.InactivityTimeout.D(),
		FallbackTokens:    c.Pipeline.FallbackTokens,
		FallbackInterval:  c.Pipeline.FallbackInterval.D(),
	}
}

// Logging converts the log section for logging.Init.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	cfg.LogToFile = c.Log.File
	cfg.LogDir = GetPaths().LogPath()
	return cfg
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Save saves the configuration to a file, as YAML when path ends in .yaml
// or .yml and as JSON otherwise.
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
