package storage

type BucketConfig struct {
	Path                string         `json:"path" yaml:"path"`                                     // local path
	Driver              string         `json:"driver" yaml:"driver"`                                 // native, memory
	DBType              string         `json:"db_type" yaml:"db_type"`                               // pebble, nutsdb
	DBPath              string         `json:"db_path" yaml:"db_path"`                               // db path, default: <bucket_path>/.indexdb
	Codec               string         `json:"codec" yaml:"codec"`                                   // json, cbor
	AsyncLoad           bool           `json:"async_load" yaml:"async_load"`                         // load metadata async
	MaxObjectLimit      int            `json:"max_object_limit" yaml:"max_object_limit"`             // max object limit, upper bound discard
	MaxDiskUsagePercent float64        `json:"max_disk_usage_percent" yaml:"max_disk_usage_percent"` // refuse new files above this usage, 0 disables
	DBConfig            map[string]any `json:"db_config" yaml:"db_config"`                           // custom db config
}
