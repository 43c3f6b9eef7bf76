package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every section.
var knownKeys = map[string][]string{
	"auth": {
		"username", "region", "auth_url", "account", "cloud_version", "token_path",
	},
	"network": {
		"servicenet", "user_agent", "connect_timeout", "request_timeout",
		"proxy_url", "proxy_username", "proxy_domain",
	},
	"transfers": {
		"max_callback_interval", "max_bytes_between_callbacks",
		"min_bytes_between_callbacks", "parallel_deletes",
	},
	"logging": {
		"log_level", "log_format",
	},
}

// knownSections is the sorted list of section names. Sorted for
// deterministic suggestions when two candidates tie.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}()

// secretKeys may never appear in the file.
var secretKeys = map[string]string{
	"api_key":        EnvAPIKey,
	"proxy_password": EnvProxyPassword,
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// one error per unknown key, with a suggestion where one is close enough.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	// An unknown table shows up once for the table and once per key in it.
	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	leaf := key[len(key)-1]
	if env, ok := secretKeys[leaf]; ok {
		return fmt.Errorf("config key %q must not be stored in the file; set %s instead", key.String(), env)
	}

	section := key[0]

	keys, ok := knownKeys[section]
	if !ok {
		return suggest(fmt.Sprintf("unknown config key %q", section), section, knownSections)
	}

	if len(key) == 1 || slices.Contains(keys, key[1]) {
		return nil
	}

	return suggest(fmt.Sprintf("unknown config key %q in [%s]", key[1], section), key[1], keys)
}

func suggest(msg, unknown string, known []string) error {
	if s := closestMatch(unknown, known); s != "" {
		return fmt.Errorf("%s: did you mean %q?", msg, s)
	}

	return errors.New(msg)
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

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization: two rows instead of a full matrix.
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

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
