package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
	"github.com/haivivi/kinectmotion/pkg/mocap"
	"github.com/haivivi/kinectmotion/pkg/take"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".kinectmotion"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Config represents the main configuration structure for a CLI app
type Config struct {
	// AppName is the application name (e.g., "kinectmotion")
	AppName string `yaml:"-"`

	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	// configPath is the path to the config file
	configPath string
}

// Context is one named capture setup: which stream to read and where the
// motion goes.
type Context struct {
	// Name is the context name
	Name string `yaml:"name"`

	// Endpoint is the stream URL (default ws://localhost:8521)
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout is the receive timeout as a duration string ("2s").
	// Empty blocks forever.
	Timeout string `yaml:"timeout,omitempty"`

	// TickRate is the capture rate in Hz (default 30)
	TickRate float64 `yaml:"tick_rate,omitempty"`

	// AutoRecord inserts keyframes while a body is tracked
	AutoRecord bool `yaml:"auto_record,omitempty"`

	// Kind is "object" or "bone"
	Kind string `yaml:"kind,omitempty"`

	// Armature is the armature driven in bone mode
	Armature string `yaml:"armature,omitempty"`

	// StartFrame is the first recorded frame
	StartFrame int `yaml:"start_frame,omitempty"`

	// Rig is a YAML or JSON rig file describing the scene
	Rig string `yaml:"rig,omitempty"`

	// TakeStore is the take database directory
	TakeStore string `yaml:"take_store,omitempty"`

	// Mapping overrides joint → target names
	Mapping map[string]string `yaml:"mapping,omitempty"`

	// S3 is the take export bucket
	S3 *take.S3Config `yaml:"s3,omitempty"`
}

// LoadConfig loads or creates configuration for the specified app
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	var configPath string

	if customPath != "" {
		configPath = customPath
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, appName, DefaultConfigFile)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}

	cfg.AppName = appName
	cfg.configPath = configPath

	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// AddContext adds or replaces a context
func (c *Config) AddContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// GetCurrentContext returns the current context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ResolveContext returns the context by name, or the current context if
// name is empty. With neither, it returns an empty context so that flags
// alone can drive a command.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		if c.CurrentContext == "" {
			return &Context{}, nil
		}
		return c.GetCurrentContext()
	}
	return c.GetContext(name)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReceiveTimeout parses Timeout. Nil means no timeout.
func (ctx *Context) ReceiveTimeout() (*time.Duration, error) {
	if ctx.Timeout == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(ctx.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout %q: %w", ctx.Timeout, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", ctx.Timeout)
	}
	return &d, nil
}

// TargetKind parses Kind.
func (ctx *Context) TargetKind() (mocap.TargetKind, error) {
	return mocap.ParseTargetKind(ctx.Kind)
}

// JointMapping returns the identity mapping with the context overrides
// applied. An override with an empty target unmaps the joint.
func (ctx *Context) JointMapping() (mocap.Mapping, error) {
	m := mocap.IdentityMapping()
	for joint, target := range ctx.Mapping {
		j := kinectmotion.JointName(joint)
		if !j.Valid() {
			return nil, fmt.Errorf("unknown joint %q in mapping", joint)
		}
		m[j] = target
	}
	return m, nil
}

// Set assigns a context field by its YAML key. Mapping entries are set
// with "mapping.<joint>" and bucket fields with "s3.<field>".
func (ctx *Context) Set(key, value string) error {
	var err error
	switch {
	case key == "endpoint":
		ctx.Endpoint = value
	case key == "timeout":
		ctx.Timeout = value
		_, err = ctx.ReceiveTimeout()
	case key == "tick_rate":
		ctx.TickRate, err = strconv.ParseFloat(value, 64)
	case key == "auto_record":
		ctx.AutoRecord, err = strconv.ParseBool(value)
	case key == "kind":
		ctx.Kind = value
		_, err = ctx.TargetKind()
	case key == "armature":
		ctx.Armature = value
	case key == "start_frame":
		ctx.StartFrame, err = strconv.Atoi(value)
	case key == "rig":
		ctx.Rig = value
	case key == "take_store":
		ctx.TakeStore = value
	case strings.HasPrefix(key, "mapping."):
		joint := strings.TrimPrefix(key, "mapping.")
		if !kinectmotion.JointName(joint).Valid() {
			return fmt.Errorf("unknown joint %q", joint)
		}
		if ctx.Mapping == nil {
			ctx.Mapping = make(map[string]string)
		}
		ctx.Mapping[joint] = value
	case strings.HasPrefix(key, "s3."):
		return ctx.setS3(strings.TrimPrefix(key, "s3."), value)
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

func (ctx *Context) setS3(field, value string) error {
	if ctx.S3 == nil {
		ctx.S3 = &take.S3Config{}
	}
	switch field {
	case "bucket":
		ctx.S3.Bucket = value
	case "prefix":
		ctx.S3.Prefix = value
	case "region":
		ctx.S3.Region = value
	case "endpoint":
		ctx.S3.Endpoint = value
	case "access_key_id":
		ctx.S3.AccessKeyID = value
	case "secret_access_key":
		ctx.S3.SecretAccessKey = value
	case "path_style":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid s3.path_style: %w", err)
		}
		ctx.S3.PathStyle = v
	default:
		return fmt.Errorf("unknown key %q", "s3."+field)
	}
	return nil
}

// Redacted returns a copy of the context safe to print.
func (ctx *Context) Redacted() *Context {
	c := *ctx
	if ctx.S3 != nil {
		s3 := *ctx.S3
		s3.SecretAccessKey = MaskSecret(s3.SecretAccessKey)
		c.S3 = &s3
	}
	return &c
}

// MaskSecret masks a secret for display
func MaskSecret(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
