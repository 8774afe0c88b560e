// Package sanitizer screens raw lead messages for prompt-injection and
// explicit-handoff patterns before they reach the language model.
package sanitizer

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxMessageLength bounds the cleaned message handed to the prompt.
const MaxMessageLength = 2000

// FlagTruncated marks messages cut at MaxMessageLength.
const FlagTruncated = "truncated"

// FlagExplicitHandoff marks an explicit request to talk to a human. It is a
// routing signal, not a security signal.
const FlagExplicitHandoff = "explicit_handoff"

//go:embed patterns.yaml
var patternsYAML []byte

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// Result is the outcome of sanitizing one message.
type Result struct {
	CleanMessage string
	Flags        []string
	IsClean      bool
}

// HasFlag reports whether a named flag was raised.
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

type detector struct {
	flag    string
	pattern *regexp.Regexp
}

type patternFile struct {
	Detectors []struct {
		Flag    string `yaml:"flag"`
		Pattern string `yaml:"pattern"`
	} `yaml:"detectors"`
}

// detectors is the ordered rule table, loaded once at startup from the
// embedded YAML so new patterns need no control-flow changes.
var detectors = mustLoadDetectors(patternsYAML)

func mustLoadDetectors(raw []byte) []detector {
	var file patternFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		panic(fmt.Sprintf("sanitizer: invalid embedded pattern table: %v", err))
	}

	loaded := make([]detector, 0, len(file.Detectors))
	for _, d := range file.Detectors {
		re, err := regexp.Compile("(?i)" + d.Pattern)
		if err != nil {
			panic(fmt.Sprintf("sanitizer: invalid pattern for flag %s: %v", d.Flag, err))
		}
		loaded = append(loaded, detector{flag: d.Flag, pattern: re})
	}
	return loaded
}

// Sanitize runs every detector against the raw text, strips HTML/XML-like
// tags, and truncates to MaxMessageLength. It never fails; empty input
// yields a clean result.
func Sanitize(text string) Result {
	flags := make([]string, 0, 2)
	seen := make(map[string]struct{})

	for _, d := range detectors {
		if !d.pattern.MatchString(text) {
			continue
		}
		if _, dup := seen[d.flag]; dup {
			continue
		}
		seen[d.flag] = struct{}{}
		flags = append(flags, d.flag)
	}

	clean := htmlTagRegex.ReplaceAllString(text, "")
	clean = strings.TrimSpace(clean)

	if runes := []rune(clean); len(runes) > MaxMessageLength {
		clean = string(runes[:MaxMessageLength])
		flags = append(flags, FlagTruncated)
	}

	return Result{
		CleanMessage: clean,
		Flags:        flags,
		IsClean:      len(flags) == 0,
	}
}

// SecurityFlags returns the subset of flags that indicate an injection
// attempt. Routing and bookkeeping flags are excluded.
func SecurityFlags(flags []string) []string {
	security := make([]string, 0, len(flags))
	for _, f := range flags {
		if f == FlagExplicitHandoff || f == FlagTruncated {
			continue
		}
		security = append(security, f)
	}
	return security
}
