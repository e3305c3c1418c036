// Package cmd implements the command line interface for the application.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arkari/irobf/internal/config"
)

var (
	cfgFile string                // -> --arkari-cfg
	bundle  *config.OptionsBundle // loaded once in PersistentPreRunE

	globalEnable bool // -> --irobf
	enIndBr      bool
	enICall      bool
	enIndGV      bool
	enFla        bool
	enCSE        bool
	enCIE        bool
	enCFE        bool
	enRTTI       bool

	levelIndBr int
	levelICall int
	levelIndGV int
	levelCIE   int
	levelCFE   int

	pointerWidth int
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "irobf",
	Short: "An IR-level obfuscation toolkit driven by a config file and per-function annotations.",
	Long: `irobf rewrites a compiler intermediate representation to hinder static
analysis and reverse engineering: page-table indirection of basic-block,
function, and global-variable references, control-flow flattening, constant
encryption, and Microsoft RTTI name scrambling.`,
	// PersistentPreRunE runs before any subcommand's RunE. Use this to load
	// configuration early and apply flag overrides, exactly like this
	// lineage's config-then-flags layering.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bundle == nil {
			loaded, err := config.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			bundle = loaded
			applyFlagOverrides(cmd)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// newEnvBinder mirrors this lineage's bindEnv helper (internal/config's
// teacher-side equivalent binds GOPHO_<KEY> env vars over flag values): an
// IROBF_<FLAG> environment variable, name-translated the same way, answers
// for a flag the user neither passed on the command line nor set in the
// config file.
func newEnvBinder() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("IROBF")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// applyFlagOverrides applies command-line flag values, then environment
// variables, to bundle. A flag only overrides a tag's entry if it was
// explicitly set by the user via cmd.Flags().Changed(), mirroring spec.md
// §6: "Flag-supplied values override config values only if the flag was
// given explicitly." An env var fills in only when the flag was not given
// and the config file has no entry for that tag, the same precedence this
// lineage's own env binding observes.
func applyFlagOverrides(cmd *cobra.Command) {
	env := newEnvBinder()

	set := func(tag config.Tag, enableFlag string, enable bool, levelFlag string, level int) {
		opt := bundle.Get(tag)
		_, inConfig := bundle.Options[tag]

		_ = env.BindEnv(enableFlag)
		switch {
		case cmd.Flags().Changed(enableFlag):
			opt.Enable = enable
		case !inConfig && env.IsSet(enableFlag):
			opt.Enable = env.GetBool(enableFlag)
		}
		if globalEnable && cmd.Flags().Changed("irobf") {
			opt.Enable = true
		}

		if levelFlag != "" {
			_ = env.BindEnv(levelFlag)
			switch {
			case cmd.Flags().Changed(levelFlag):
				opt.Level = level
			case !inConfig && env.IsSet(levelFlag):
				opt.Level = clampToLevel(env.GetInt(levelFlag))
			}
		}
		bundle.Options[tag] = opt
	}

	set(config.TagIndBr, "irobf-indbr", enIndBr, "level-indbr", levelIndBr)
	set(config.TagICall, "irobf-icall", enICall, "level-icall", levelICall)
	set(config.TagIndGV, "irobf-indgv", enIndGV, "level-indgv", levelIndGV)
	set(config.TagFla, "irobf-cff", enFla, "", 0)
	set(config.TagCSE, "irobf-cse", enCSE, "", 0)
	set(config.TagCIE, "irobf-cie", enCIE, "level-cie", levelCIE)
	set(config.TagCFE, "irobf-cfe", enCFE, "level-cfe", levelCFE)
	set(config.TagRTTI, "irobf-rtti", enRTTI, "", 0)
}

// clampToLevel keeps an env-supplied level within the 0-3 range spec.md §3
// requires, the same clamp internal/config applies to config-file levels.
func clampToLevel(l int) int {
	if l < 0 {
		return 0
	}
	if l > 3 {
		return 3
	}
	return l
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "arkari-cfg", "", "obfuscation options JSON config file")

	rootCmd.PersistentFlags().BoolVar(&globalEnable, "irobf", false, "enable every obfuscation pass (a per-pass flag set to false does not turn its pass off)")
	rootCmd.PersistentFlags().BoolVar(&enIndBr, "irobf-indbr", false, "enable indirect-branch obfuscation")
	rootCmd.PersistentFlags().BoolVar(&enICall, "irobf-icall", false, "enable indirect-call obfuscation")
	rootCmd.PersistentFlags().BoolVar(&enIndGV, "irobf-indgv", false, "enable indirect-global-variable obfuscation")
	rootCmd.PersistentFlags().BoolVar(&enFla, "irobf-cff", false, "enable control-flow flattening")
	rootCmd.PersistentFlags().BoolVar(&enCSE, "irobf-cse", false, "enable constant string encryption (external collaborator)")
	rootCmd.PersistentFlags().BoolVar(&enCIE, "irobf-cie", false, "enable constant integer encryption")
	rootCmd.PersistentFlags().BoolVar(&enCFE, "irobf-cfe", false, "enable constant floating-point encryption")
	rootCmd.PersistentFlags().BoolVar(&enRTTI, "irobf-rtti", false, "enable Microsoft RTTI name scrambling")

	rootCmd.PersistentFlags().IntVar(&levelIndBr, "level-indbr", 0, "enhancement level (0-3) for indirect-branch obfuscation")
	rootCmd.PersistentFlags().IntVar(&levelICall, "level-icall", 0, "enhancement level (0-3) for indirect-call obfuscation")
	rootCmd.PersistentFlags().IntVar(&levelIndGV, "level-indgv", 0, "enhancement level (0-3) for indirect-global-variable obfuscation")
	rootCmd.PersistentFlags().IntVar(&levelCIE, "level-cie", 0, "encryption level (0-3) for constant integer encryption")
	rootCmd.PersistentFlags().IntVar(&levelCFE, "level-cfe", 0, "encryption level (0-3) for constant floating-point encryption")

	rootCmd.PersistentFlags().IntVar(&pointerWidth, "pointer-width", 64, "host pointer width in bits (32 or 64), selects the flattener's dispatcher state width")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(whatisCmd)
}
