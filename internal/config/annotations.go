package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arkari/irobf/internal/obferr"
)

// EffectiveOption is the resolved (enabled, level) pair for one
// (pass, function) pair, computed on demand and never stored across runs
// (spec.md §3).
type EffectiveOption struct {
	Enable bool
	Level  int
}

// annotationToken is one parsed `+tag` / `-tag` / `^tag = d` token.
type annotationToken struct {
	kind     byte // '+', '-', '^'
	tag      string
	levelStr string
	wellFormed bool
}

// tokenStart finds the next occurrence of '+', '-', or '^' at or after i.
func tokenStart(s string, i int) int {
	for ; i < len(s); i++ {
		switch s[i] {
		case '+', '-', '^':
			return i
		}
	}
	return -1
}

var tagNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*`)
var levelRe = regexp.MustCompile(`^\^([A-Za-z][A-Za-z0-9_]*)\s*=\s*([0-9])\s*$`)

// parseAnnotationTokens splits an annotation string into its +/-/^ tokens.
// Tokens run from one marker character up to (but not including) the next
// marker character, trimmed of surrounding whitespace — this lets
// `^indbr = 3` stay one token despite the internal spaces.
func parseAnnotationTokens(s string) []annotationToken {
	var tokens []annotationToken
	i := tokenStart(s, 0)
	for i != -1 {
		next := tokenStart(s, i+1)
		var raw string
		if next == -1 {
			raw = s[i:]
		} else {
			raw = s[i:next]
		}
		raw = strings.TrimSpace(raw)
		tokens = append(tokens, parseToken(raw))
		if next == -1 {
			break
		}
		i = next
	}
	return tokens
}

func parseToken(raw string) annotationToken {
	kind := raw[0]
	body := raw[1:]
	switch kind {
	case '+', '-':
		m := tagNameRe.FindString(body)
		if m == "" || m != strings.TrimSpace(body) {
			return annotationToken{kind: kind, tag: body, wellFormed: false}
		}
		return annotationToken{kind: kind, tag: m, wellFormed: true}
	case '^':
		m := levelRe.FindStringSubmatch(raw)
		if m == nil {
			// Still attempt to recover the tag name for error reporting.
			tag := tagNameRe.FindString(body)
			return annotationToken{kind: kind, tag: tag, wellFormed: false}
		}
		return annotationToken{kind: kind, tag: m[1], levelStr: m[2], wellFormed: true}
	}
	return annotationToken{kind: kind, wellFormed: false}
}

// ResolveAnnotations computes the effective option for one (tag, function)
// pair, combining the global config option with the function's raw
// annotation strings, per the resolution rules of spec.md §4.A.
//
// eligible must be the result of Function.Eligible(): ineligible functions
// are always disabled at level 0 with no error.
func ResolveAnnotations(tag Tag, global ObfuscationOption, annotations []string, funcName string, eligible bool) (EffectiveOption, error) {
	if !eligible {
		return EffectiveOption{Enable: false, Level: 0}, nil
	}

	var sawPlus, sawMinus bool
	var levelCount int
	var levelVal int
	var malformed *obferr.AnnotationError

	for _, ann := range annotations {
		for _, tok := range parseAnnotationTokens(ann) {
			if tok.tag != tag2str(tag) {
				continue
			}
			switch tok.kind {
			case '+':
				sawPlus = true
			case '-':
				sawMinus = true
			case '^':
				if !tok.wellFormed {
					malformed = &obferr.AnnotationError{
						Function: funcName, Tag: tag2str(tag),
						Reason: fmt.Sprintf("malformed level annotation %q", ann),
					}
					continue
				}
				levelCount++
				levelVal = clampLevel(int(tok.levelStr[0] - '0'))
			}
		}
	}

	if malformed != nil {
		return EffectiveOption{Enable: false, Level: 0}, malformed
	}
	if sawPlus && sawMinus {
		return EffectiveOption{Enable: false, Level: 0}, &obferr.AnnotationError{
			Function: funcName, Tag: tag2str(tag),
			Reason: "conflicting +tag and -tag annotations",
		}
	}
	if levelCount > 1 {
		return EffectiveOption{Enable: false, Level: 0}, &obferr.AnnotationError{
			Function: funcName, Tag: tag2str(tag),
			Reason: "multiple level (^tag) annotations for the same tag",
		}
	}

	eff := EffectiveOption{Enable: global.Enable, Level: global.Level}
	if sawPlus {
		eff.Enable = true
	} else if sawMinus {
		eff.Enable = false
	}
	if levelCount == 1 {
		eff.Level = levelVal
	}
	return eff, nil
}

func tag2str(t Tag) string { return string(t) }
