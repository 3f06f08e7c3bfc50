package types

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name      string           `yaml:"name" json:"name" validate:"required"`
	Version   string           `yaml:"version" json:"version"`
	Engine    *EngineConfig    `yaml:"engine" json:"engine"`
	Logger    *LoggerConfig    `yaml:"logger" json:"logger"`
	Store     *StoreConfig     `yaml:"store" json:"store"`
	Broadcast *BroadcastConfig `yaml:"broadcast" json:"broadcast"`
	Metrics   *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Health    *HealthConfig    `yaml:"health" json:"health"`
}

const (
	DefaultPersistentPrefix = "@"
	DefaultNamespace        = "shared"
)

// EngineConfig names the key sentinel marking persistent keys and the
// namespace prepended to durable record keys. The defaults produce store keys
// of the form "shared@user" for the state key "@user".
type EngineConfig struct {
	PersistentPrefix string `yaml:"persistent_prefix" json:"persistent_prefix" validate:"required,len=1"`
	Namespace        string `yaml:"namespace" json:"namespace" validate:"required,excludes=@"`
}

// WithDefaults returns a copy with zero fields filled in. The receiver may be
// nil, so callers can dereference optional config sections directly.
func (c *EngineConfig) WithDefaults() *EngineConfig {
	out := &EngineConfig{}
	if c != nil {
		*out = *c
	}
	if out.PersistentPrefix == "" {
		out.PersistentPrefix = DefaultPersistentPrefix
	}
	if out.Namespace == "" {
		out.Namespace = DefaultNamespace
	}
	return out
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type StoreConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Path    string      `yaml:"path" json:"path"`
	Config  interface{} `yaml:"config" json:"config"`
}

type BroadcastConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Prefix  string      `yaml:"prefix" json:"prefix"`
	Config  interface{} `yaml:"config" json:"config"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}
