// Package config loads the JSON obfuscation-options schema of spec.md §6
// and resolves per-function effective options by combining it with
// embedded source annotations (spec.md §4.A). Loading follows this
// lineage's LoadConfig/SaveConfig/DefaultConfig shape, adjusted to a
// JSON-only schema as the external interface requires; flag/config layering
// (this lineage's usual job for viper) lives in cmd/irobf/cmd, which binds
// CLI flags over the loaded bundle via cobra's own Changed() check.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/arkari/irobf/internal/obferr"
)

// Tag identifies one obfuscation pass by its short attribute name.
type Tag string

const (
	TagIndBr Tag = "indbr"
	TagICall Tag = "icall"
	TagIndGV Tag = "indgv"
	TagFla   Tag = "fla"
	TagCSE   Tag = "cse"
	TagCIE   Tag = "cie"
	TagCFE   Tag = "cfe"
	TagRTTI  Tag = "rtti"
)

// AllTags lists every recognized tag, including "cse" (whose pass is
// external). The order is the declaration order above, not the order in
// which the pipeline runs the passes.
var AllTags = []Tag{TagIndBr, TagICall, TagIndGV, TagFla, TagCSE, TagCIE, TagCFE, TagRTTI}

func isKnownTag(t Tag) bool {
	for _, k := range AllTags {
		if k == t {
			return true
		}
	}
	return false
}

// ObfuscationOption is one per obfuscation kind: enabled flag and a level
// clamped to 0..3 (spec.md §3).
type ObfuscationOption struct {
	Tag    Tag  `json:"-"`
	Enable bool `json:"enable"`
	Level  int  `json:"level"`
}

func clampLevel(l int) int {
	if l < 0 {
		return 0
	}
	if l > 3 {
		return 3
	}
	return l
}

// OptionsBundle is a mapping from tag to ObfuscationOption plus the
// 32-byte random seed shared by every pass in one compilation (spec.md §3).
type OptionsBundle struct {
	RandomSeed [32]byte
	Options    map[Tag]ObfuscationOption
}

// Get returns the configured option for tag, or the zero option (disabled,
// level 0) if the tag was never set.
func (b *OptionsBundle) Get(tag Tag) ObfuscationOption {
	if b.Options == nil {
		return ObfuscationOption{Tag: tag}
	}
	if o, ok := b.Options[tag]; ok {
		return o
	}
	return ObfuscationOption{Tag: tag}
}

type rawTagOption struct {
	Enable *bool `json:"enable"`
	Level  *int  `json:"level"`
}

// LoadConfig reads the JSON config at path and produces an OptionsBundle.
// An empty path yields an all-disabled bundle whose random seed comes from
// the IROBF_RANDOM_SEED environment variable (NUL-padded to 32 bytes) and
// is all zero bytes when that variable is unset or empty, matching this
// lineage's "fall back to defaults when no path is given" behavior. A non-empty path that cannot be
// read or parsed is a fatal *obferr.ConfigError.
func LoadConfig(path string) (*OptionsBundle, error) {
	bundle := &OptionsBundle{Options: make(map[Tag]ObfuscationOption)}

	if path == "" {
		fillRandomSeedFromEnv(bundle)
		return bundle, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, obferr.NewConfigError(fmt.Sprintf("cannot read config file %q", path), err)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, obferr.NewConfigError("config root is not a JSON object", err)
	}

	if seedRaw, ok := root["randomSeed"]; ok {
		var seedStr string
		if err := json.Unmarshal(seedRaw, &seedStr); err != nil {
			return nil, obferr.NewConfigError("randomSeed must be a string", err)
		}
		copy(bundle.RandomSeed[:], padTo32(seedStr))
		delete(root, "randomSeed")
	}

	for key, raw := range root {
		tag := Tag(key)
		if !isKnownTag(tag) {
			fmt.Fprintf(os.Stderr, "Warning: unknown config key %q ignored\n", key)
			continue
		}
		var rt rawTagOption
		if err := json.Unmarshal(raw, &rt); err != nil {
			return nil, obferr.NewConfigError(fmt.Sprintf("invalid option object for %q", key), err)
		}
		opt := ObfuscationOption{Tag: tag}
		if rt.Enable != nil {
			opt.Enable = *rt.Enable
		}
		if rt.Level != nil {
			opt.Level = clampLevel(*rt.Level)
		}
		bundle.Options[tag] = opt
	}

	return bundle, nil
}

// padTo32 right-pads s with NUL bytes to exactly 32 bytes (spec.md §6),
// truncating if the supplied seed is already longer.
func padTo32(s string) []byte {
	b := make([]byte, 32)
	copy(b, s)
	return b
}

func fillRandomSeedFromEnv(bundle *OptionsBundle) {
	if s := os.Getenv("IROBF_RANDOM_SEED"); s != "" {
		copy(bundle.RandomSeed[:], padTo32(s))
	}
}

// SaveConfig writes bundle back out as JSON, the effective-options dump
// feature described in SPEC_FULL.md's supplemented features.
func SaveConfig(path string, bundle *OptionsBundle) error {
	root := make(map[string]interface{})
	root["randomSeed"] = strings.TrimRight(string(bundle.RandomSeed[:]), "\x00")
	for tag, opt := range bundle.Options {
		root[string(tag)] = map[string]interface{}{
			"enable": opt.Enable,
			"level":  opt.Level,
		}
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}
	return nil
}

// DefaultConfig returns a bundle with every tag disabled at level 0 and an
// all-zero random seed, mirroring this lineage's DefaultConfig().
func DefaultConfig() *OptionsBundle {
	bundle := &OptionsBundle{Options: make(map[Tag]ObfuscationOption)}
	for _, t := range AllTags {
		bundle.Options[t] = ObfuscationOption{Tag: t}
	}
	return bundle
}

// RequireRandomSeed returns a fatal *obferr.ConfigError if the RTTI
// scrambler is enabled but the bundle's seed is all-zero (spec.md §7, §8
// boundary case "A config with empty randomSeed and RTTI eraser enabled").
func RequireRandomSeed(bundle *OptionsBundle) error {
	if !bundle.Get(TagRTTI).Enable {
		return nil
	}
	var zero [32]byte
	if bundle.RandomSeed == zero {
		return obferr.NewConfigError("randomSeed is empty but rtti scrambler is enabled", nil)
	}
	return nil
}
