package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blind-voting/storage"
)

func testFlags(t *testing.T, args ...string) *flag.FlagSet {
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	addConfigFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadConfigFlags(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(testFlags(t,
		"--dataDir", dir,
		"--candidates", "Ada,Grace",
		"--session", "90m",
		"--storage", "pebble",
	))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.dataDir)
	assert.Equal(t, []string{"Ada", "Grace"}, cfg.candidates)
	assert.Equal(t, 90*time.Minute, cfg.session)
	assert.Equal(t, storage.TypePebble, cfg.storage)
	assert.Equal(t, 2048, cfg.keyBits)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ballotd.yml"),
		[]byte("port: 9999\nqueueSize: 3\ncandidates:\n  - X\n  - Y\n"), 0644))
	t.Setenv("BALLOTD_QUEUESIZE", "7")

	cfg, err := loadConfig(testFlags(t, "--dataDir", dir))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.port)
	assert.Equal(t, 7, cfg.queueSize)
	assert.Equal(t, []string{"X", "Y"}, cfg.candidates)
}

func TestLoadConfigRejectsDifficulty(t *testing.T) {
	for _, difficulty := range []string{"3", "9"} {
		_, err := loadConfig(testFlags(t, "--dataDir", t.TempDir(), "--difficulty", difficulty))
		assert.Error(t, err, difficulty)
	}

	cfg, err := loadConfig(testFlags(t, "--dataDir", t.TempDir(), "--difficulty", "2"))
	require.NoError(t, err)
	assert.Equal(t, uint(2), cfg.difficulty)
}

func TestDemo(t *testing.T) {
	cfg, err := loadConfig(testFlags(t, "--dataDir", t.TempDir(),
		"--candidates", "Ada,Grace", "--voters", "a,b,c,d,e"))
	require.NoError(t, err)

	out := new(bytes.Buffer)
	require.NoError(t, runDemo(context.Background(), out, cfg))
	assert.Contains(t, out.String(), "Total number of voters: 5")
	assert.True(t, strings.Contains(out.String(), "wins") || strings.Contains(out.String(), "Tie"))
}
