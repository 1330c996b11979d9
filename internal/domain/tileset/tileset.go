// Package tileset loads and applies the MGRS tile allowlist that both link
// fetcher modes use to filter incoming granules (spec.md §4.2.1 step 6,
// §4.2.2 step 4).
package tileset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
)

// titleTileIDPattern extracts the 5-character MGRS tile code embedded in a
// Sentinel-2 product filename, e.g. "..._T31UFU_...". Grounded on
// original_source/lambdas/link_fetcher/app/common.py:parse_tile_id_from_title.
var titleTileIDPattern = regexp.MustCompile(`_T([0-9A-Z]{5})_`)

// Set is an MGRS tile allowlist.
type Set map[string]struct{}

// Load reads a newline-delimited allowlist file (spec.md §6, "MGRS
// allowlist file").
func Load(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tile allowlist %q: %w", path, err)
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) (Set, error) {
	set := make(Set)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		set[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan tile allowlist: %w", err)
	}
	return set, nil
}

// Contains reports whether tileID is in the allowlist.
func (s Set) Contains(tileID string) bool {
	_, ok := s[tileID]
	return ok
}

// ParseTileIDFromTitle extracts the MGRS tile code embedded in a product
// title/filename, returning "" if none is found.
func ParseTileIDFromTitle(title string) string {
	match := titleTileIDPattern.FindStringSubmatch(title)
	if match == nil {
		return ""
	}
	return match[1]
}
