package api_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/fixtures"
	"github.com/arkari/irobf/pkg/api"
)

func TestNewObfuscatorDefaults(t *testing.T) {
	o, err := api.NewObfuscator(api.Options{})
	require.NoError(t, err)
	require.NotNil(t, o.Bundle())
	require.False(t, o.Bundle().Get(config.TagCIE).Enable)
}

func TestObfuscatorRunEnablesNothingByDefault(t *testing.T) {
	o, err := api.NewObfuscator(api.Options{})
	require.NoError(t, err)

	m := fixtures.DemoModule()
	summary, err := o.Run(m)
	require.NoError(t, err)
	require.Equal(t, 0, summary.ConstIntEncrypted.RewriteCount)
	require.Equal(t, 0, summary.IndirectCalls.RewriteCount)
}

func TestObfuscatorRunWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
		"randomSeed": "0123456789abcdef0123456789abcdef",
		"cie": {"enable": true, "level": 1},
		"icall": {"enable": true, "level": 0}
	}`), 0o644))

	o, err := api.NewObfuscator(api.Options{ConfigPath: cfgPath})
	require.NoError(t, err)

	m := fixtures.DemoModule()
	summary, err := o.Run(m)
	require.NoError(t, err)
	require.Greater(t, summary.ConstIntEncrypted.RewriteCount, 0)
	require.Equal(t, 1, summary.IndirectCalls.ObjectCount)
}

func TestObfuscatorSaveRoundTrips(t *testing.T) {
	o, err := api.NewObfuscator(api.Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	out := filepath.Join(dir, "effective.json")
	require.NoError(t, o.Save(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "randomSeed")
}
