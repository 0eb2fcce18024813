package conf

import (
	"time"

	"github.com/omalloc/cellar/pkg/mapstruct"
)

type Bootstrap struct {
	Strict   bool      `json:"strict" yaml:"strict"`
	PidFile  string    `json:"pidfile" yaml:"pidfile"`
	Logger   *Logger   `json:"logger" yaml:"logger"`
	Server   *Server   `json:"server" yaml:"server"`
	Download *Download `json:"download" yaml:"download"`
	Cache    *Cache    `json:"cache" yaml:"cache"`
	Events   *Events   `json:"events" yaml:"events"`
	Sources  []*Source `json:"sources" yaml:"sources"`
}

type Logger struct {
	Level      string `json:"level" yaml:"level"`
	Path       string `json:"path" yaml:"path"` // empty logs to stdout
	MaxSize    int    `json:"max_size" yaml:"max_size"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAge     int    `json:"max_age" yaml:"max_age"`
	Compress   bool   `json:"compress" yaml:"compress"`
	JSON       bool   `json:"json" yaml:"json"`
}

type Server struct {
	Addr              string           `json:"addr" yaml:"addr"`
	ReadTimeout       time.Duration    `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration    `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       time.Duration    `json:"idle_timeout" yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration    `json:"read_header_timeout" yaml:"read_header_timeout"`
	MaxHeaderBytes    int              `json:"max_header_bytes" yaml:"max_header_bytes"`
	ShutdownTimeout   time.Duration    `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	AccessLog         *ServerAccessLog `json:"access_log" yaml:"access_log"`
}

type ServerAccessLog struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAge     int    `json:"max_age" yaml:"max_age"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type Download struct {
	MaxRetryAttempts     int           `json:"max_retry_attempts" yaml:"max_retry_attempts"`
	DelayBetweenAttempts time.Duration `json:"delay_between_attempts" yaml:"delay_between_attempts"`
	MonitorPeriod        time.Duration `json:"monitor_period" yaml:"monitor_period"`
	CacheWhenCanceled    bool          `json:"cache_when_canceled" yaml:"cache_when_canceled"`
	ChunkSize            int           `json:"chunk_size" yaml:"chunk_size"`
	MemoryThreshold      int           `json:"memory_threshold" yaml:"memory_threshold"`
	TempDir              string        `json:"temp_dir" yaml:"temp_dir"`
	RateLimitKbps        int           `json:"rate_limit_kbps" yaml:"rate_limit_kbps"`
	StatusRetention      time.Duration `json:"status_retention" yaml:"status_retention"`
}

type Cache struct {
	Enabled             bool           `json:"enabled" yaml:"enabled"`
	Verify              bool           `json:"verify" yaml:"verify"`
	Path                string         `json:"path" yaml:"path"`
	Driver              string         `json:"driver" yaml:"driver"`   // native, memory
	DBType              string         `json:"db_type" yaml:"db_type"` // pebble, nutsdb
	DBPath              string         `json:"db_path" yaml:"db_path"`
	Codec               string         `json:"codec" yaml:"codec"` // json, cbor
	AsyncLoad           bool           `json:"async_load" yaml:"async_load"`
	MaxObjectLimit      int            `json:"max_object_limit" yaml:"max_object_limit"`
	MaxDiskUsagePercent float64        `json:"max_disk_usage_percent" yaml:"max_disk_usage_percent"`
	DBConfig            map[string]any `json:"db_config" yaml:"db_config"`
}

type Events struct {
	NotificationEnabled bool `json:"notification_enabled" yaml:"notification_enabled"`
	ActivityEnabled     bool `json:"activity_enabled" yaml:"activity_enabled"`
}

// Source is a product source the server can retrieve from.
type Source struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`         // http, file
	Endpoint string         `json:"endpoint" yaml:"endpoint"` // base url or root directory
	Options  map[string]any `json:"options" yaml:"options"`
}

func (r *Source) Unmarshal(v any) error {
	return mapstruct.Decode(r.Options, v)
}

// Default returns the configuration every loaded file is merged onto.
func Default() *Bootstrap {
	return &Bootstrap{
		PidFile: "/tmp/cellar.pid",
		Logger: &Logger{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     7,
		},
		Server: &Server{
			Addr:              ":8080",
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      0, // products stream for a long time
			IdleTimeout:       90 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ShutdownTimeout:   30 * time.Second,
			AccessLog:         &ServerAccessLog{},
		},
		Download: &Download{
			MaxRetryAttempts:     3,
			DelayBetweenAttempts: 10 * time.Second,
			MonitorPeriod:        5 * time.Second,
			CacheWhenCanceled:    false,
			ChunkSize:            32 << 10,
			MemoryThreshold:      32 << 20,
			StatusRetention:      time.Hour,
		},
		Cache: &Cache{
			Enabled: true,
			Path:    "/tmp/cellar/product-cache",
			Driver:  "native",
			DBType:  "pebble",
			Codec:   "json",
		},
		Events: &Events{
			NotificationEnabled: true,
			ActivityEnabled:     true,
		},
	}
}
