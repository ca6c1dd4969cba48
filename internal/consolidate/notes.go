package consolidate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/enrich-cli/internal/model"
)

var notesURLPattern = regexp.MustCompile(`https?://[^\s;]+`)

const notesSeparator = "; "

// buildNotes renders the Observações value: URLs already present, the source
// URLs of the evidence that backed accepted values, and one marker per
// disagreement. Entries are deduplicated and sorted so reruns are idempotent.
func buildNotes(current string, urls []string, disagreements []model.Disagreement) string {
	seen := map[string]bool{}
	var entries []string
	add := func(e string) {
		e = strings.TrimSpace(e)
		if e != "" && !seen[e] {
			seen[e] = true
			entries = append(entries, e)
		}
	}

	for _, u := range notesURLPattern.FindAllString(current, -1) {
		add(strings.TrimRight(u, ".,"))
	}
	for _, u := range urls {
		add(strings.TrimRight(u, ".,"))
	}
	for _, d := range disagreements {
		add(disagreementMarker(d))
	}

	sort.Strings(entries)
	return strings.Join(entries, notesSeparator)
}

// disagreementMarker renders one conflict for the Observações column.
func disagreementMarker(d model.Disagreement) string {
	return fmt.Sprintf("Divergência %s: %s", d.Field.Header(), strings.Join(d.Values, " / "))
}
