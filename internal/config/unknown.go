package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid fully-qualified keys in the config file.
var knownKeys = map[string]bool{
	"data_dir":                true,
	"service.base_url":        true,
	"service.client_id":       true,
	"service.connect_timeout": true,
	"service.legacy_endpoint": true,
	"upload.concurrency":      true,
	"upload.default_format":   true,
	"upload.flat":             true,
	"upload.cleaner_name":     true,
	"upload.location":         true,
	"outbox.dir":              true,
	"outbox.album":            true,
	"accounts.multi_active":   true,
	"accounts.plan_limit":     true,
	"logging.level":           true,
	"logging.format":          true,
	"logging.file":            true,
}

// knownKeysList is the sorted slice form for Levenshtein matching. Sorted
// for deterministic suggestions when two candidates tie on edit distance.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key. Strictness
// is deliberate: silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		keyStr := key.String()

		// A known section name alone surfaces when it contains only
		// unknown children; the children carry the useful message.
		if strings.IndexByte(keyStr, '.') < 0 && hasKnownChildren(keyStr) {
			continue
		}

		if suggestion := closestMatch(keyStr, knownKeysList); suggestion != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q — did you mean %q?", keyStr, suggestion))
		} else {
			errs = append(errs, fmt.Errorf("unknown config key %q", keyStr))
		}
	}

	return errors.Join(errs...)
}

func hasKnownChildren(section string) bool {
	prefix := section + "."
	for k := range knownKeys {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}

	return false
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings with the
// single-row optimization.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
