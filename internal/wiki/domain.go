package wiki

import (
	"fmt"
	"strings"

	"github.com/sevigo/revision-warden/internal/core"
)

var specialDomains = map[string]string{
	"wikidatawiki":  "www.wikidata.org",
	"commonswiki":   "commons.wikimedia.org",
	"metawiki":      "meta.wikimedia.org",
	"mediawikiwiki": "www.mediawiki.org",
	"specieswiki":   "species.wikimedia.org",
}

var projectSuffixes = []struct {
	suffix string
	host   string
}{
	{"wiktionary", "wiktionary.org"},
	{"wikiquote", "wikiquote.org"},
	{"wikisource", "wikisource.org"},
	{"wikibooks", "wikibooks.org"},
	{"wikinews", "wikinews.org"},
	{"wikivoyage", "wikivoyage.org"},
	{"wiki", "wikipedia.org"},
}

// Domain maps a database name such as "enwiki" to its public host.
func Domain(wiki string) (string, error) {
	if d, ok := specialDomains[wiki]; ok {
		return d, nil
	}
	for _, p := range projectSuffixes {
		lang, found := strings.CutSuffix(wiki, p.suffix)
		if found && lang != "" {
			return strings.ReplaceAll(lang, "_", "-") + "." + p.host, nil
		}
	}
	return "", fmt.Errorf("%w: unknown wiki %q", core.ErrMalformedInput, wiki)
}
