package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/arkari/irobf/internal/rttiscrambler"
)

var whatisContext string

// whatisCmd is the naming-convention reverse lookup this lineage ships as
// `whatis`: given one of this toolkit's generated global names (spec.md §6
// "Persisted IR artifacts"), it reports which pass produced it and its
// position in that pass's page-table chain. Given --context, it instead
// looks the name up as a previously scrambled RTTI descriptor string via a
// saved internal/rttiscrambler.Context.
var whatisCmd = &cobra.Command{
	Use:   "whatis <name>",
	Short: "Explain a generated global name, or reverse an RTTI-scrambled descriptor string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if whatisContext != "" {
			ctx, err := rttiscrambler.Load(whatisContext)
			if err != nil {
				return fmt.Errorf("loading rtti context: %w", err)
			}
			original, ok := ctx.Unscramble(name)
			if !ok {
				return fmt.Errorf("%q not found in rtti context %s", name, whatisContext)
			}
			fmt.Printf("%s -> %s (rtti name scrambler)\n", name, original)
			return nil
		}

		explanation, ok := explainName(name)
		if !ok {
			return fmt.Errorf("%q does not match any known generated-global naming convention", name)
		}
		fmt.Println(explanation)
		return nil
	},
}

var (
	// moduleChainRe matches a module-level page-table chain global:
	// M_<Pass>_objects_<seq> or M_<Pass>_page_table_<page>_<seq>.
	moduleChainRe = regexp.MustCompile(`^M_([A-Za-z]+)_(objects|page_table_(\d+))_\d+$`)
	// enhancedChainRe matches a per-function enhanced chain global:
	// MF_<Pass>_objects_<seq> or MF_<Pass>_page_table_<page>_<seq>.
	enhancedChainRe = regexp.MustCompile(`^MF_([A-Za-z]+)_(objects|page_table_(\d+))_\d+$`)
	// constEncRe matches a constant-encryption side global:
	// <Module>_CIEnc_<seq> or <Module>_CFPEnc_<seq>.
	constEncRe = regexp.MustCompile(`^(.+)_(CIEnc|CFPEnc)_\d+$`)
)

func explainName(name string) (string, bool) {
	if m := moduleChainRe.FindStringSubmatch(name); m != nil {
		if m[3] != "" {
			return fmt.Sprintf("%s: module-level page-table page %s for the %q indirection pass", name, m[3], m[1]), true
		}
		return fmt.Sprintf("%s: module-level shuffled object array for the %q indirection pass", name, m[1]), true
	}
	if m := enhancedChainRe.FindStringSubmatch(name); m != nil {
		if m[3] != "" {
			return fmt.Sprintf("%s: per-function enhanced page-table page %s for the %q indirection pass", name, m[3], m[1]), true
		}
		return fmt.Sprintf("%s: per-function enhanced shuffled object array for the %q indirection pass", name, m[1]), true
	}
	if m := constEncRe.FindStringSubmatch(name); m != nil {
		kind := "integer"
		if m[2] == "CFPEnc" {
			kind = "floating-point"
		}
		return fmt.Sprintf("%s: constant-%s-encryption side global in module %q", name, kind, m[1]), true
	}
	return "", false
}

func init() {
	whatisCmd.Flags().StringVar(&whatisContext, "context", "", "path to a saved RTTI scrambler context (see internal/rttiscrambler.Context.Save)")
}
