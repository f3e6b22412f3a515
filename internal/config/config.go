// Package config resolves memd's layered configuration: built-in defaults,
// a project config.yaml, MEMD_-prefixed environment variables, and finally
// command-line flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/agentmemory/memd/internal/classifier"
)

// Config is a resolved view over memd's settings, backed by a *viper.Viper
// instance so callers can still reach for Get/GetString/GetInt directly.
type Config struct {
	v *viper.Viper
}

// defaults mirrors the configuration keys enumerated in this project's
// configuration-keys table.
var defaults = map[string]interface{}{
	"db.path":                         "./.memd/var/memory.db",
	"rpc.socket":                      "", // not read: the socket is always project.VarPath(projectDir, "memd.sock")
	"log.level":                       "info",
	"retention.lexical.age_days":      180,
	"retention.lexical.enabled":       false, // not read: lexical-prune's Enabled comes from scheduler.LoadJobSpecs
	"retention.vector.age_days":       365,
	"tier.cache_ttl_ms":               30000,
	"tier.probe_timeout_ms":           500,
	"classifier.min_confidence":       0.35,
	"classifier.keywords.explore":     classifier.DefaultExploreKeywords,
	"classifier.keywords.answer":      classifier.DefaultAnswerKeywords,
	"classifier.keywords.locate":      classifier.DefaultLocateKeywords,
	"stopcond.default.timeout_ms":     2000,
	"stopcond.default.max_nodes":      20,
	"stopcond.default.max_depth":      4,
	"stopcond.default.max_rpc_calls":  8,
	"stopcond.default.max_tokens":     0, // 0 disables the bound
	"stopcond.default.beam_width":     3,
	"stopcond.default.min_confidence": 0.3,
	"topics.half_life_days":           14.0,
	"topics.recency_boost_factor":     1.5,
	"topics.min_score":                0.05,
	"usage.cache_size":                4096,
	"usage.flush_interval_ms":         60000, // not read: flushes run on the usage-flush job's interval
	"usage.prefetch_interval_ms":      5000,  // not read: the daemon does not run the prefetch pass
	"usage.enabled":                   true,
}

// Load builds a Config from defaults, an optional config.yaml at
// configPath (skipped silently if absent), MEMD_-prefixed environment
// variables, and flags bound by BindFlags.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("MEMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !isNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	return &Config{v: v}, nil
}

// BindFlags gives command-line flags the highest precedence, overriding
// file and environment values for any flag the caller has changed.
func (c *Config) BindFlags(flags *pflag.FlagSet) error {
	return c.v.BindPFlags(flags)
}

func isNotExist(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

func (c *Config) GetString(key string) string      { return c.v.GetString(key) }
func (c *Config) GetInt(key string) int            { return c.v.GetInt(key) }
func (c *Config) GetInt64(key string) int64        { return c.v.GetInt64(key) }
func (c *Config) GetFloat64(key string) float64    { return c.v.GetFloat64(key) }
func (c *Config) GetBool(key string) bool          { return c.v.GetBool(key) }
func (c *Config) GetStringSlice(key string) []string { return c.v.GetStringSlice(key) }

// Set overrides a key at runtime, taking precedence over every other
// layer.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Viper exposes the underlying *viper.Viper for callers that need
// sub-tree unmarshalling (e.g. classifier keyword lists).
func (c *Config) Viper() *viper.Viper { return c.v }
