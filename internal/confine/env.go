package confine

import "strings"

// FilterEnv returns only env vars whose keys are in the allowlist. An
// empty allowlist keeps everything, since the delegate needs its normal
// environment to find interpreters and proxy settings. Entries without
// '=' are dropped. Key matching is case-sensitive.
func FilterEnv(env []string, allowlist []string) []string {
	if len(allowlist) == 0 {
		return env
	}

	allowed := make(map[string]bool, len(allowlist))
	for _, k := range allowlist {
		allowed[k] = true
	}

	var result []string
	for _, entry := range env {
		k, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if allowed[k] {
			result = append(result, entry)
		}
	}
	return result
}
