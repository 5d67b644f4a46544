package licenses

import "strings"

// spdxIDs holds the subset of the SPDX license list observed in real BOMs.
// Lookups are case-insensitive; the canonical casing is what gets persisted.
var spdxIDs = []string{
	"0BSD",
	"AFL-3.0",
	"AGPL-3.0-only",
	"AGPL-3.0-or-later",
	"Apache-1.1",
	"Apache-2.0",
	"Artistic-2.0",
	"BSD-1-Clause",
	"BSD-2-Clause",
	"BSD-3-Clause",
	"BSD-3-Clause-Clear",
	"BSD-4-Clause",
	"BSL-1.0",
	"CC-BY-3.0",
	"CC-BY-4.0",
	"CC-BY-SA-4.0",
	"CC0-1.0",
	"CDDL-1.0",
	"CDDL-1.1",
	"CPL-1.0",
	"EPL-1.0",
	"EPL-2.0",
	"EUPL-1.1",
	"EUPL-1.2",
	"GPL-1.0-only",
	"GPL-2.0-only",
	"GPL-2.0-or-later",
	"GPL-2.0-with-classpath-exception",
	"GPL-3.0-only",
	"GPL-3.0-or-later",
	"ISC",
	"LGPL-2.0-only",
	"LGPL-2.1-only",
	"LGPL-2.1-or-later",
	"LGPL-3.0-only",
	"LGPL-3.0-or-later",
	"MIT",
	"MIT-0",
	"MPL-1.1",
	"MPL-2.0",
	"MS-PL",
	"MS-RL",
	"NCSA",
	"OFL-1.1",
	"OpenSSL",
	"PHP-3.01",
	"PostgreSQL",
	"Python-2.0",
	"Ruby",
	"SSPL-1.0",
	"Unicode-DFS-2016",
	"Unlicense",
	"UPL-1.0",
	"W3C",
	"WTFPL",
	"X11",
	"Zlib",
	"ZPL-2.1",
}

var spdxIndex = func() map[string]string {
	index := make(map[string]string, len(spdxIDs))
	for _, id := range spdxIDs {
		index[strings.ToLower(id)] = id
	}
	return index
}()

// KnownIDs returns the canonical SPDX identifiers the resolver recognizes.
func KnownIDs() []string {
	cp := make([]string, len(spdxIDs))
	copy(cp, spdxIDs)
	return cp
}

// CanonicalID maps a license identifier to its canonical SPDX form.
// Returns ("", false) for identifiers not on the list.
func CanonicalID(id string) (string, bool) {
	canonical, ok := spdxIndex[strings.ToLower(strings.TrimSpace(id))]
	return canonical, ok
}
