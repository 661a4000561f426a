package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"blind-voting/blindsig"
	"blind-voting/service"
	"blind-voting/storage"
)

// maxDifficulty bounds block mining. Each extra zero byte costs 256x more
// hashes per block, and every accepted ballot mines two blocks.
const maxDifficulty = 2

// ballotConfig contains the configuration shared by all commands.
type ballotConfig struct {
	dataDir, logLevel, storage, votersFile, adminToken string
	port, keyBits, publicExponent, queueSize            int
	difficulty                                          uint
	candidates, voters                                  []string
	session                                             time.Duration
}

func addConfigFlags(flags *flag.FlagSet) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	flags.String("dataDir", filepath.Join(home, ".ballotd"), "storage data directory")
	flags.String("logLevel", "info", "log level (debug, info, warn, error)")
	flags.Int("port", 8080, "network port for the HTTP API")
	flags.String("storage", storage.TypeJSON, "block storage backend (json, pebble, memory)")
	flags.Int("keyBits", blindsig.MinKeyBits, "authority RSA modulus size in bits")
	flags.Int("publicExponent", blindsig.DefaultPublicExponent, "authority RSA public exponent")
	flags.StringSlice("candidates", []string{}, "candidate names, numbered from 1 in the given order")
	flags.StringSlice("voters", []string{}, "eligible voter identities (overrides votersFile)")
	flags.String("votersFile", "voters_registry.json", "voter registry file, relative to dataDir")
	flags.Duration("session", 0, "voting session duration, 0 keeps it open until ended")
	flags.Int("queueSize", 256, "pending registrations and votes per queue")
	flags.Uint("difficulty", 1, "leading zero bytes required in block hashes, at most 2")
	flags.String("adminToken", "", "bearer token for administrative endpoints")
}

// loadConfig merges flags, BALLOTD_* environment variables and an
// optional ballotd.yml in the data directory, in that order of priority.
func loadConfig(flags *flag.FlagSet) (*ballotConfig, error) {
	pviper := viper.New()
	pviper.SetConfigName("ballotd")
	pviper.SetConfigType("yml")
	pviper.SetEnvPrefix("BALLOTD")
	pviper.AutomaticEnv()
	pviper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := pviper.BindPFlags(flags); err != nil {
		return nil, err
	}
	pviper.AddConfigPath(pviper.GetString("dataDir"))
	if err := pviper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &ballotConfig{
		dataDir:        pviper.GetString("dataDir"),
		logLevel:       pviper.GetString("logLevel"),
		storage:        pviper.GetString("storage"),
		votersFile:     pviper.GetString("votersFile"),
		adminToken:     pviper.GetString("adminToken"),
		port:           pviper.GetInt("port"),
		keyBits:        pviper.GetInt("keyBits"),
		publicExponent: pviper.GetInt("publicExponent"),
		queueSize:      pviper.GetInt("queueSize"),
		difficulty:     pviper.GetUint("difficulty"),
		candidates:     pviper.GetStringSlice("candidates"),
		voters:         pviper.GetStringSlice("voters"),
		session:        pviper.GetDuration("session"),
	}
	if cfg.difficulty > maxDifficulty {
		return nil, fmt.Errorf("difficulty %d is too high, at most %d", cfg.difficulty, maxDifficulty)
	}
	return cfg, nil
}

func (c *ballotConfig) keyOptions() blindsig.Options {
	return blindsig.Options{Bits: c.keyBits, PublicExponent: c.publicExponent}
}

func (c *ballotConfig) serviceConfig() service.Config {
	return service.Config{
		DataDir:         c.dataDir,
		StorageType:     c.storage,
		Candidates:      c.candidates,
		VotersFile:      c.votersFile,
		Voters:          c.voters,
		SessionDuration: c.session,
		KeyOptions:      c.keyOptions(),
		Difficulty:      uint8(c.difficulty),
	}
}
