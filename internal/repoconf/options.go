package repoconf

import (
	"sort"

	"github.com/buildguard/buildguard-cli/internal/api"
)

// FrameworkChoices filters framework suggestions down to the given languages.
// Grouped options yield the union of the matching language groups; flat
// options pass through unchanged. When no languages are selected yet
// (detection incomplete), the full option set is returned rather than an
// empty one, so valid choices are never hidden.
func FrameworkChoices(opts *api.FrameworkOptions, languages []string) []string {
	if opts == nil {
		return nil
	}

	if opts.Kind == api.OptionsFlat {
		return append([]string(nil), opts.Flat...)
	}

	groups := opts.Groups
	selected := languages
	if len(selected) == 0 {
		selected = make([]string, 0, len(groups))
		for lang := range groups {
			selected = append(selected, lang)
		}
	}

	seen := make(map[string]struct{})
	for _, lang := range selected {
		for _, fw := range groups[lang] {
			seen[fw] = struct{}{}
		}
	}

	choices := make([]string, 0, len(seen))
	for fw := range seen {
		choices = append(choices, fw)
	}
	sort.Strings(choices)
	return choices
}
