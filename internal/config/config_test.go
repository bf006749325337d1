package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "geocluster.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeYAML(t, "node:\n  id: n1\n")
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "local", c.Bus.Kind)
	assert.Equal(t, "fs", c.Catalog.Store.Kind)
	assert.Equal(t, 4, c.Consumer.Workers)
	assert.Equal(t, 10*time.Minute, c.DedupTTL())
	assert.Equal(t, 5*time.Second, c.RaftApplyTimeout())
	assert.Equal(t, filepath.Join(filepath.Dir(p), "data", "catalog"), c.Catalog.Store.FSRoot)
}

func TestLoad_YAMLSections(t *testing.T) {
	p := writeYAML(t, `
app:
  env: staging
node:
  id: n2
bus:
  kind: raft
  signing_key: s3cret
  raft:
    addr: 127.0.0.1:8202
    dir: /var/lib/geocluster/raft
    peers:
      n1: 127.0.0.1:8201
      n2: 127.0.0.1:8202
    leader_redirects:
      n1: http://127.0.0.1:8081
    apply_timeout: 2s
consumer:
  workers: 8
  dedup_ttl: 1m
catalog:
  store:
    kind: postgres
    dsn: postgres://u:p@localhost/geo
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "raft", c.Bus.Kind)
	assert.Equal(t, "/var/lib/geocluster/raft", c.Bus.Raft.Dir)
	assert.Len(t, c.Bus.Raft.Peers, 2)
	assert.Equal(t, "http://127.0.0.1:8081", c.Bus.Raft.LeaderRedirects["n1"])
	assert.Equal(t, 2*time.Second, c.RaftApplyTimeout())
	assert.Equal(t, 8, c.Consumer.Workers)
	assert.Equal(t, time.Minute, c.DedupTTL())
	assert.Equal(t, "postgres", c.Catalog.Store.Kind)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GEOCLUSTER_NODE_ID", "from-env")
	t.Setenv("GEOCLUSTER_BUS_KIND", "REDIS")
	t.Setenv("GEOCLUSTER_REDIS_ADDR", "redis:6379")
	t.Setenv("GEOCLUSTER_CONSUMER_WORKERS", "2")
	t.Setenv("GEOCLUSTER_LEADER_REDIRECTS", "n1=http://a:1; n2=http://b:2")
	t.Setenv("GEOCLUSTER_CATALOG_STORE", "memory")

	c, err := Load(writeYAML(t, "node:\n  id: n1\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Node.ID)
	assert.Equal(t, "redis", c.Bus.Kind)
	assert.Equal(t, "redis:6379", c.Bus.Redis.Addr)
	assert.Equal(t, 2, c.Consumer.Workers)
	assert.Equal(t, map[string]string{"n1": "http://a:1", "n2": "http://b:2"}, c.Bus.Raft.LeaderRedirects)
	assert.Equal(t, "memory", c.Catalog.Store.Kind)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("GEOCLUSTER_NODE_ID", "n1")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./data/catalog", c.Catalog.Store.FSRoot)
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown bus":       "node: {id: n1}\nbus: {kind: kafka}\n",
		"raft without addr": "node: {id: n1}\nbus: {kind: raft}\n",
		"pg without dsn":    "node: {id: n1}\ncatalog: {store: {kind: postgres}}\n",
		"bad duration":      "node: {id: n1}\nconsumer: {dedup_ttl: soon}\n",
		"prod unsigned":     "app: {env: prod}\nnode: {id: n1}\nbus: {kind: redis}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseKVList(t *testing.T) {
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, parseKVList(" a=1 ;b=2;;=x;c=", ";"))
	assert.Empty(t, parseKVList("", ";"))
}
