// Package config carga la configuración del nodo: YAML + overrides por entorno
// (GEOCLUSTER_*). El .env lo carga el CLI antes de llamar a Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix es el prefijo de todas las variables de entorno.
const EnvPrefix = "GEOCLUSTER_"

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		// debug | info | warn | error
		Level string `yaml:"level"`
	} `yaml:"log"`

	Node struct {
		ID string `yaml:"id"`
	} `yaml:"node"`

	Server struct {
		Addr            string `yaml:"addr"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Bus struct {
		// local | redis | raft
		Kind       string `yaml:"kind"`
		SigningKey string `yaml:"signing_key"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Channel  string `yaml:"channel"`
		} `yaml:"redis"`
		Raft struct {
			Addr               string            `yaml:"addr"`
			Dir                string            `yaml:"dir"`
			Peers              map[string]string `yaml:"peers"`            // nodeID -> host:port (raft)
			LeaderRedirects    map[string]string `yaml:"leader_redirects"` // nodeID -> baseURL
			BootstrapPreferred bool              `yaml:"bootstrap_preferred"`
			DisableBootstrap   bool              `yaml:"disable_bootstrap"`
			ApplyTimeout       string            `yaml:"apply_timeout"`
			TLS                struct {
				Enable     bool   `yaml:"enable"`
				CertFile   string `yaml:"cert_file"`
				KeyFile    string `yaml:"key_file"`
				CAFile     string `yaml:"ca_file"`
				ServerName string `yaml:"server_name"`
			} `yaml:"tls"`
		} `yaml:"raft"`
	} `yaml:"bus"`

	Consumer struct {
		Workers        int    `yaml:"workers"`
		QueueSize      int    `yaml:"queue_size"`
		DedupTTL       string `yaml:"dedup_ttl"`
		EnqueueTimeout string `yaml:"enqueue_timeout"`
	} `yaml:"consumer"`

	Catalog struct {
		Store struct {
			// fs | postgres | memory
			Kind     string `yaml:"kind"`
			FSRoot   string `yaml:"fs_root"`
			DSN      string `yaml:"dsn"`
			MaxConns int    `yaml:"max_conns"`
		} `yaml:"store"`
	} `yaml:"catalog"`
}

// Load lee el YAML en path (vacío = sólo defaults + entorno), aplica defaults,
// overrides de entorno y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Rutas relativas se resuelven respecto al directorio del YAML.
	if path != "" {
		base := filepath.Dir(path)
		c.Catalog.Store.FSRoot = resolve(base, c.Catalog.Store.FSRoot)
		c.Bus.Raft.Dir = resolve(base, c.Bus.Raft.Dir)
	}
	return &c, nil
}

func resolve(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Node.ID == "" {
		if h, err := os.Hostname(); err == nil {
			c.Node.ID = h
		}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Bus.Kind == "" {
		c.Bus.Kind = "local"
	}
	if c.Bus.Redis.Addr == "" {
		c.Bus.Redis.Addr = "localhost:6379"
	}
	if c.Bus.Redis.Channel == "" {
		c.Bus.Redis.Channel = "geocluster:catalog"
	}
	if c.Bus.Raft.Dir == "" {
		c.Bus.Raft.Dir = "./data/raft"
	}
	if c.Bus.Raft.ApplyTimeout == "" {
		c.Bus.Raft.ApplyTimeout = "5s"
	}
	if c.Bus.Raft.Peers == nil {
		c.Bus.Raft.Peers = map[string]string{}
	}
	if c.Bus.Raft.LeaderRedirects == nil {
		c.Bus.Raft.LeaderRedirects = map[string]string{}
	}
	if c.Consumer.Workers == 0 {
		c.Consumer.Workers = 4
	}
	if c.Consumer.QueueSize == 0 {
		c.Consumer.QueueSize = 1024
	}
	if c.Consumer.DedupTTL == "" {
		c.Consumer.DedupTTL = "10m"
	}
	if c.Consumer.EnqueueTimeout == "" {
		c.Consumer.EnqueueTimeout = "5s"
	}
	if c.Catalog.Store.Kind == "" {
		c.Catalog.Store.Kind = "fs"
	}
	if c.Catalog.Store.FSRoot == "" {
		c.Catalog.Store.FSRoot = "./data/catalog"
	}
	if c.Catalog.Store.MaxConns == 0 {
		c.Catalog.Store.MaxConns = 10
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvStr("NODE_ID"); ok {
		c.Node.ID = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// BUS
	if v, ok := getEnvStr("BUS_KIND"); ok {
		c.Bus.Kind = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("BUS_SIGNING_KEY"); ok {
		c.Bus.SigningKey = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Bus.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Bus.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Bus.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_CHANNEL"); ok {
		c.Bus.Redis.Channel = v
	}
	if v, ok := getEnvStr("RAFT_ADDR"); ok {
		c.Bus.Raft.Addr = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("RAFT_DIR"); ok {
		c.Bus.Raft.Dir = v
	}
	// GEOCLUSTER_RAFT_PEERS="n1=127.0.0.1:8201;n2=127.0.0.1:8202"
	if m, ok := getEnvKVList("RAFT_PEERS", ";"); ok {
		for k, v := range m {
			c.Bus.Raft.Peers[k] = v
		}
	}
	// GEOCLUSTER_LEADER_REDIRECTS="n1=http://127.0.0.1:8081;n2=http://127.0.0.1:8082"
	if m, ok := getEnvKVList("LEADER_REDIRECTS", ";"); ok {
		for k, v := range m {
			c.Bus.Raft.LeaderRedirects[k] = v
		}
	}
	if v, ok := getEnvBool("RAFT_BOOTSTRAP_PREFERRED"); ok {
		c.Bus.Raft.BootstrapPreferred = v
	}
	if v, ok := getEnvBool("RAFT_DISABLE_BOOTSTRAP"); ok {
		c.Bus.Raft.DisableBootstrap = v
	}
	if v, ok := getEnvStr("RAFT_APPLY_TIMEOUT"); ok {
		c.Bus.Raft.ApplyTimeout = v
	}
	if v, ok := getEnvBool("RAFT_TLS_ENABLE"); ok {
		c.Bus.Raft.TLS.Enable = v
	}
	if v, ok := getEnvStr("RAFT_TLS_CERT_FILE"); ok {
		c.Bus.Raft.TLS.CertFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_KEY_FILE"); ok {
		c.Bus.Raft.TLS.KeyFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_CA_FILE"); ok {
		c.Bus.Raft.TLS.CAFile = v
	}
	if v, ok := getEnvStr("RAFT_TLS_SERVER_NAME"); ok {
		c.Bus.Raft.TLS.ServerName = v
	}

	// CONSUMER
	if v, ok := getEnvInt("CONSUMER_WORKERS"); ok {
		c.Consumer.Workers = v
	}
	if v, ok := getEnvInt("CONSUMER_QUEUE_SIZE"); ok {
		c.Consumer.QueueSize = v
	}
	if v, ok := getEnvStr("CONSUMER_DEDUP_TTL"); ok {
		c.Consumer.DedupTTL = v
	}
	if v, ok := getEnvStr("CONSUMER_ENQUEUE_TIMEOUT"); ok {
		c.Consumer.EnqueueTimeout = v
	}

	// CATALOG
	if v, ok := getEnvStr("CATALOG_STORE"); ok {
		c.Catalog.Store.Kind = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("CATALOG_FS_ROOT"); ok {
		c.Catalog.Store.FSRoot = v
	}
	if v, ok := getEnvStr("CATALOG_DSN"); ok {
		c.Catalog.Store.DSN = v
	}
	if v, ok := getEnvInt("CATALOG_MAX_CONNS"); ok {
		c.Catalog.Store.MaxConns = v
	}
}

// Validate chequea valores críticos. Junta todos los problemas en un solo error.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Node.ID) == "" {
		errs = append(errs, errors.New("node.id is required"))
	}
	switch c.Bus.Kind {
	case "local", "redis":
	case "raft":
		if c.Bus.Raft.Addr == "" {
			errs = append(errs, errors.New("bus.raft.addr is required when bus.kind=raft"))
		}
		if c.Bus.Raft.TLS.Enable && (c.Bus.Raft.TLS.CertFile == "" || c.Bus.Raft.TLS.KeyFile == "" || c.Bus.Raft.TLS.CAFile == "") {
			errs = append(errs, errors.New("bus.raft.tls requires cert_file, key_file and ca_file"))
		}
	default:
		errs = append(errs, fmt.Errorf("bus.kind %q: want local|redis|raft", c.Bus.Kind))
	}
	switch c.Catalog.Store.Kind {
	case "fs", "memory":
	case "postgres":
		if c.Catalog.Store.DSN == "" {
			errs = append(errs, errors.New("catalog.store.dsn is required when catalog.store.kind=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog.store.kind %q: want fs|postgres|memory", c.Catalog.Store.Kind))
	}
	if c.Consumer.Workers < 1 {
		errs = append(errs, errors.New("consumer.workers must be >= 1"))
	}
	if c.Consumer.QueueSize < 1 {
		errs = append(errs, errors.New("consumer.queue_size must be >= 1"))
	}
	for name, v := range map[string]string{
		"server.shutdown_timeout":  c.Server.ShutdownTimeout,
		"bus.raft.apply_timeout":   c.Bus.Raft.ApplyTimeout,
		"consumer.dedup_ttl":       c.Consumer.DedupTTL,
		"consumer.enqueue_timeout": c.Consumer.EnqueueTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if strings.EqualFold(c.App.Env, "prod") && c.Bus.Kind != "local" && c.Bus.SigningKey == "" {
		errs = append(errs, errors.New("bus.signing_key is required in prod"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ShutdownTimeout, RaftApplyTimeout, DedupTTL y EnqueueTimeout parsean los strings
// ya validados.
func (c *Config) ShutdownTimeout() time.Duration  { return mustDuration(c.Server.ShutdownTimeout) }
func (c *Config) RaftApplyTimeout() time.Duration { return mustDuration(c.Bus.Raft.ApplyTimeout) }
func (c *Config) DedupTTL() time.Duration         { return mustDuration(c.Consumer.DedupTTL) }
func (c *Config) EnqueueTimeout() time.Duration   { return mustDuration(c.Consumer.EnqueueTimeout) }

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
