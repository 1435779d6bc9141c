/*
Package config loads the configuration of grove commands from YAML
files, GROVE_ prefixed environment variables and defaults, and opens
the blob stores and queues it describes.
*/
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pbanos/grove"
	"github.com/pbanos/grove/logger"
	"github.com/pbanos/grove/split"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding
// configuration values, like GROVE_TRAINING_SEED
const EnvPrefix = "GROVE"

// Config is the configuration of grove commands
type Config struct {
	Training      TrainingConfig `mapstructure:"training"`
	Blob          BlobConfig     `mapstructure:"blob"`
	Queue         QueueConfig    `mapstructure:"queue"`
	Log           logger.Config  `mapstructure:"log"`
	Workers       int            `mapstructure:"workers"`
	ForkThreshold int            `mapstructure:"fork_threshold"`
	ChunkRows     int            `mapstructure:"chunk_rows"`
	MetricsAddr   string         `mapstructure:"metrics_addr"`
}

// TrainingConfig holds the training parameters of forests
type TrainingConfig struct {
	TreesPerNode   int                `mapstructure:"trees_per_node"`
	MaxDepth       int                `mapstructure:"max_depth"`
	SampleFraction float64            `mapstructure:"sample_fraction"`
	BinLimit       int                `mapstructure:"bin_limit"`
	SplitStrategy  string             `mapstructure:"split_strategy"`
	Seed           int64              `mapstructure:"seed"`
	ClassColumn    int                `mapstructure:"class_column"`
	IgnoredColumns []int              `mapstructure:"ignored_columns"`
	NumFeatures    int                `mapstructure:"num_features"`
	ClassWeights   map[string]float64 `mapstructure:"class_weights"`
	Stratify       bool               `mapstructure:"stratify"`
	MinFitness     float64            `mapstructure:"min_fitness"`
	MinRows        int                `mapstructure:"min_rows"`
}

// BlobConfig selects and configures the blob store backend
type BlobConfig struct {
	// Backend is one of memory, redis or minio
	Backend     string      `mapstructure:"backend"`
	Compression string      `mapstructure:"compression"`
	Redis       RedisConfig `mapstructure:"redis"`
	Minio       MinioConfig `mapstructure:"minio"`
}

// RedisConfig configures a redis client
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// MinioConfig configures the minio bucket blobs are kept on
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// QueueConfig selects and configures the task queue of distributed
// runtimes
type QueueConfig struct {
	// Backend is one of memory or redis
	Backend    string        `mapstructure:"backend"`
	Redis      RedisConfig   `mapstructure:"redis"`
	ID         string        `mapstructure:"id"`
	TaskMaxRun time.Duration `mapstructure:"task_max_run"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	Poll       time.Duration `mapstructure:"poll"`
	// Nodes is the number of worker processes pulling from the queue
	Nodes int `mapstructure:"nodes"`
}

func setDefaults(v *viper.Viper) {
	p := grove.DefaultParams()
	v.SetDefault("training.trees_per_node", p.TreesPerNode)
	v.SetDefault("training.max_depth", p.MaxDepth)
	v.SetDefault("training.sample_fraction", p.SampleFraction)
	v.SetDefault("training.bin_limit", p.BinLimit)
	v.SetDefault("training.split_strategy", p.SplitStrategy.String())
	v.SetDefault("training.seed", p.Seed)
	v.SetDefault("training.class_column", p.ClassColumn)
	v.SetDefault("training.num_features", p.NumFeatures)
	v.SetDefault("training.stratify", p.Stratify)
	v.SetDefault("training.min_fitness", p.MinFitness)
	v.SetDefault("training.min_rows", p.MinRows)

	v.SetDefault("blob.backend", "memory")
	v.SetDefault("blob.compression", "none")
	v.SetDefault("blob.redis.addr", "localhost:6379")
	v.SetDefault("blob.redis.prefix", "grove")
	v.SetDefault("blob.minio.endpoint", "localhost:9000")
	v.SetDefault("blob.minio.bucket", "grove")

	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.id", "grove")
	v.SetDefault("queue.task_max_run", 10*time.Minute)
	v.SetDefault("queue.lock_ttl", 5*time.Second)
	v.SetDefault("queue.poll", 100*time.Millisecond)
	v.SetDefault("queue.nodes", 1)

	l := logger.DefaultConfig()
	v.SetDefault("log.level", l.Level)
	v.SetDefault("log.encoding", l.Encoding)
	v.SetDefault("log.output", l.OutputPaths)

	v.SetDefault("workers", 4)
	v.SetDefault("fork_threshold", grove.DefaultForkThreshold)
	v.SetDefault("chunk_rows", 4096)
	v.SetDefault("metrics_addr", "")
}

/*
Load reads the configuration from the YAML file at the given path, if
not empty. Values missing from the file are taken from GROVE_ prefixed
environment variables, with dots turned into underscores, or else from
defaults.
*/
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate returns an error if the configuration selects unknown
// backends or sizes
func (c *Config) Validate() error {
	switch c.Blob.Backend {
	case "memory", "redis", "minio":
	default:
		return fmt.Errorf("unknown blob backend %q, valid ones are memory, redis and minio", c.Blob.Backend)
	}
	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown queue backend %q, valid ones are memory and redis", c.Queue.Backend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Queue.Nodes < 1 {
		return fmt.Errorf("queue nodes must be at least 1, got %d", c.Queue.Nodes)
	}
	if _, err := c.Training.Params(); err != nil {
		return err
	}
	return nil
}

// Params returns the training parameters, which still need to be
// validated against the dataset they are used on
func (tc *TrainingConfig) Params() (grove.Params, error) {
	strategy, err := split.ParseStrategy(tc.SplitStrategy)
	if err != nil {
		return grove.Params{}, fmt.Errorf("%w: %v", grove.ErrInvalidParams, err)
	}
	p := grove.Params{
		TreesPerNode:   tc.TreesPerNode,
		MaxDepth:       tc.MaxDepth,
		SampleFraction: tc.SampleFraction,
		BinLimit:       tc.BinLimit,
		SplitStrategy:  strategy,
		Seed:           tc.Seed,
		ClassColumn:    tc.ClassColumn,
		IgnoredColumns: tc.IgnoredColumns,
		NumFeatures:    tc.NumFeatures,
		Stratify:       tc.Stratify,
		MinFitness:     tc.MinFitness,
		MinRows:        tc.MinRows,
	}
	if len(tc.ClassWeights) > 0 {
		p.ClassWeights = make(map[int]float64, len(tc.ClassWeights))
		for class, w := range tc.ClassWeights {
			c, err := strconv.Atoi(class)
			if err != nil {
				return grove.Params{}, fmt.Errorf("%w: class weight for %q: %v", grove.ErrInvalidParams, class, err)
			}
			p.ClassWeights[c] = w
		}
	}
	return p, nil
}
