// 包 config：部署构建与副本进程的统一配置；默认值 → YAML 文件 → 环境变量，逐层覆盖
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	MiB = 1024 * 1024

	DefaultTotalCeiling  = int64(18.5 * MiB)
	DefaultDeployCeiling = int64(13 * MiB)
	DefaultMemoryRankMax = 215
	DefaultDeployRankMax = 358
	DefaultOriginPort    = "8080"
)

// ErrInvalid：配置取值不一致（预算、阈值），构建阶段应直接失败
var ErrInvalid = errors.New("invalid config")

// Budgets：各层预算与排名阈值
// 约束：MemoryRankMax 即 R1，DeployRankMax 即 R2；两者均为开区间上界
type Budgets struct {
	TotalCeiling  int64 `yaml:"total_ceiling" env:"CDN_TOTAL_CEILING"`
	DeployCeiling int64 `yaml:"deploy_ceiling" env:"CDN_DEPLOY_CEILING"`
	MemoryRankMax int   `yaml:"memory_rank_max" env:"CDN_MEMORY_RANK_MAX"`
	DeployRankMax int   `yaml:"deploy_rank_max" env:"CDN_DEPLOY_RANK_MAX"`
}

// RuntimeCeiling：运行期磁盘补全可用预算
func (b Budgets) RuntimeCeiling() int64 { return b.TotalCeiling - b.DeployCeiling }

type Origin struct {
	Host string `yaml:"host" env:"ORIGIN_HOST"`
	Port string `yaml:"port" env:"ORIGIN_PORT"`
}

type Snapshot struct {
	Path     string `yaml:"path" env:"SNAPSHOT_PATH"`
	S3Bucket string `yaml:"s3_bucket" env:"SNAPSHOT_S3_BUCKET"`
	S3Key    string `yaml:"s3_key" env:"SNAPSHOT_S3_KEY"`
	S3Region string `yaml:"s3_region" env:"SNAPSHOT_S3_REGION"`
}

type Geo struct {
	RangesCSV      string   `yaml:"ranges_csv" env:"GEO_RANGES_CSV"`
	CoordinatesCSV string   `yaml:"coordinates_csv" env:"GEO_COORDINATES_CSV"`
	MMDBPath       string   `yaml:"mmdb_path" env:"GEO_MMDB_PATH"`
	FromDB         bool     `yaml:"from_db" env:"GEO_FROM_DB"`
	Replicas       []string `yaml:"replicas" env:"GEO_REPLICAS" envSeparator:","`
	CacheTTLSec    int      `yaml:"cache_ttl_sec" env:"GEO_CACHE_TTL_S"`
}

type Config struct {
	Origin     Origin   `yaml:"origin"`
	Budgets    Budgets  `yaml:"budgets"`
	Snapshot   Snapshot `yaml:"snapshot"`
	Geo        Geo      `yaml:"geo"`
	RankCSV    string   `yaml:"rank_csv" env:"RANK_CSV"`
	RankFromDB bool     `yaml:"rank_from_db" env:"RANK_FROM_DB"`
	DeployDir  string   `yaml:"deploy_dir" env:"DEPLOY_CACHE_DIR"`
	RuntimeDir string   `yaml:"runtime_dir" env:"RUNTIME_CACHE_DIR"`
	Addr       string   `yaml:"addr" env:"ADDR"`
	RedisAddr  string   `yaml:"redis_addr" env:"REDIS_ADDR"`
	// RateLimitQPS 为 0 表示不限流
	RateLimitQPS int `yaml:"rate_limit_qps" env:"RATE_LIMIT_QPS"`
}

// Default：与参考部署一致的默认值
func Default() Config {
	return Config{
		Origin: Origin{Port: DefaultOriginPort},
		Budgets: Budgets{
			TotalCeiling:  DefaultTotalCeiling,
			DeployCeiling: DefaultDeployCeiling,
			MemoryRankMax: DefaultMemoryRankMax,
			DeployRankMax: DefaultDeployRankMax,
		},
		Snapshot:   Snapshot{Path: "serialized_in_memory_cache.cbor", S3Key: "snapshot/memory.cbor"},
		Geo:        Geo{RangesCSV: "ip_ranges.csv", CoordinatesCSV: "country_coordinates.csv", CacheTTLSec: 3600},
		RankCSV:    "pageviews.csv",
		DeployDir:  "cache",
		RuntimeDir: "cache-runtime",
		Addr:       ":8080",
	}
}

// 文档注释：加载配置
// 背景：先读 .env（缺失忽略），再读 CDN_CONFIG 指向的 YAML（若设置则必须可读），最后以环境变量覆盖。
// 返回：校验后的配置；YAML 不可读或取值不一致时返回错误。
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	cfg := Default()
	if p := os.Getenv("CDN_CONFIG"); p != "" {
		if err := LoadFile(p, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile：将 YAML 文件叠加到 cfg 上，文件中未出现的字段保持原值
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		return err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate：检查预算与阈值的一致性
func (c Config) Validate() error {
	b := c.Budgets
	switch {
	case b.TotalCeiling <= 0:
		return fmt.Errorf("%w: total ceiling must be positive, got %d", ErrInvalid, b.TotalCeiling)
	case b.DeployCeiling <= 0:
		return fmt.Errorf("%w: deploy ceiling must be positive, got %d", ErrInvalid, b.DeployCeiling)
	case b.DeployCeiling >= b.TotalCeiling:
		return fmt.Errorf("%w: deploy ceiling %d must be below total ceiling %d", ErrInvalid, b.DeployCeiling, b.TotalCeiling)
	case b.MemoryRankMax < 1:
		return fmt.Errorf("%w: memory rank bound must be >= 1, got %d", ErrInvalid, b.MemoryRankMax)
	case b.DeployRankMax < b.MemoryRankMax:
		return fmt.Errorf("%w: deploy rank bound %d below memory rank bound %d", ErrInvalid, b.DeployRankMax, b.MemoryRankMax)
	case c.RateLimitQPS < 0:
		return fmt.Errorf("%w: rate limit must not be negative, got %d", ErrInvalid, c.RateLimitQPS)
	}
	return nil
}
