package config

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SYNCGW_DATA_DIR", dir)

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "syncgw.db"), cfg.DB.Path)
	assert.Equal(t, filepath.Join(dir, "attachments"), cfg.Attachments.Dir)
	assert.Equal(t, 5*time.Second, cfg.DB.BusyTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Attachments.GrantTTL)
	assert.Equal(t, "LOCAL", cfg.Gateway.LocalAccountType)
	assert.Equal(t, 1000, cfg.Recurrence.MaxInstances)
	assert.Equal(t, "127.0.0.1:8765", cfg.HTTP.Addr)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYNCGW_DATA_DIR", t.TempDir())
	t.Setenv("SYNCGW_HTTP_ADDR", ":9999")
	t.Setenv("SYNCGW_RECURRENCE_MAX_INSTANCES", "42")
	t.Setenv("SYNCGW_ATTACHMENTS_SWEEP_GRACE", "90s")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 42, cfg.Recurrence.MaxInstances)
	assert.Equal(t, 90*time.Second, cfg.Attachments.SweepGrace)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
data_dir: `+dir+`
db:
  path: `+filepath.Join(dir, "other.db")+`
gateway:
  owner_caller: org.example.app
log:
  level: debug
  format: json
`), 0o644))

	v := NewViper()
	cfg, err := Load(v, file)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "other.db"), cfg.DB.Path)
	assert.Equal(t, filepath.Join(dir, "attachments"), cfg.Attachments.Dir)
	assert.Equal(t, "org.example.app", cfg.Gateway.OwnerCaller)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, file, ConfigFile(v))
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Setenv("SYNCGW_DATA_DIR", t.TempDir())
		cfg, err := Load(NewViper(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty db path", func(c *Config) { c.DB.Path = "" }},
		{"no connections", func(c *Config) { c.DB.MaxOpenConns = 0 }},
		{"empty attachment dir", func(c *Config) { c.Attachments.Dir = "" }},
		{"zero debounce", func(c *Config) { c.Attachments.SweepDebounce = 0 }},
		{"zero grant ttl", func(c *Config) { c.Attachments.GrantTTL = 0 }},
		{"no local type", func(c *Config) { c.Gateway.LocalAccountType = "" }},
		{"zero instances", func(c *Config) { c.Recurrence.MaxInstances = 0 }},
		{"negative horizon", func(c *Config) { c.Recurrence.HorizonYears = -1 }},
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// Each exported configuration type carries a doc comment.
func TestExportedTypesDocumented(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "config.go", nil, parser.ParseComments)
	require.NoError(t, err)

	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			if !ts.Name.IsExported() {
				continue
			}
			doc := ts.Doc
			if doc == nil {
				doc = gen.Doc
			}
			assert.NotNil(t, doc, "type %s has no doc comment", ts.Name.Name)
		}
	}
}
