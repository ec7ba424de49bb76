// internal/pkg/config/config.go
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 包装 time.Duration，使其可以在 YAML 中写成 "60s"、"15m" 这样的形式。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config 是所有服务共享的配置根结构。
type Config struct {
	App struct {
		// OrderTimeout 决定预占库存的 expiresAt：下单时间 + OrderTimeout。
		OrderTimeout Duration `yaml:"orderTimeout"`
		// OrderRules 是下单准入规则，CEL 布尔表达式，全部通过才允许创建订单。
		OrderRules []string `yaml:"orderRules"`
	} `yaml:"app"`

	Infra struct {
		MySQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr     string   `yaml:"addr"`
			StockTTL Duration `yaml:"stockTTL"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers          []string `yaml:"brokers"`
			OrderEventsTopic string   `yaml:"orderEventsTopic"`
			UserEventsTopic  string   `yaml:"userEventsTopic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`

	// Services 是各协作服务的静态地址，未接入 Nacos 时由它兜底。
	Services map[string]string `yaml:"services"`

	Inventory struct {
		SweepInterval Duration `yaml:"sweepInterval"`
		// SweepLockPath 非空时，清扫任务先抢占 Zookeeper 锁，保证集群内单实例执行。
		SweepLockPath string `yaml:"sweepLockPath"`
	} `yaml:"inventory"`
}

// Load 从 CONFIG_PATH（默认 config.yaml）读取配置，再叠加环境变量覆盖。
// 配置文件不存在不是错误，此时完全依赖默认值与环境变量。
func Load() (*Config, error) {
	cfg := defaults()

	path := getEnv("CONFIG_PATH", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.OrderTimeout = Duration(15 * time.Minute)
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/atlas?parseTime=true"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Redis.StockTTL = Duration(30 * time.Second)
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.OrderEventsTopic = "order-events"
	cfg.Infra.Kafka.UserEventsTopic = "user-events"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Services = map[string]string{
		"product-service":   "http://localhost:3004",
		"cart-service":      "http://localhost:3002",
		"order-service":     "http://localhost:3003",
		"inventory-service": "http://localhost:3005",
	}
	cfg.Inventory.SweepInterval = Duration(60 * time.Second)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := os.Getenv("ZOOKEEPER_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("RESERVATION_SWEEP_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Inventory.SweepInterval = Duration(parsed)
		}
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
