// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package stats

import (
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// maxGenreRunes caps a plausible genre tag; anything longer is treated
// as junk data that leaked into the genre field upstream.
const maxGenreRunes = 20

// parseGenres decodes the serialized genre array stored on a history
// row. Genre data is untrusted free text from the source server:
// malformed JSON yields no genres at all, and individual tokens are
// dropped when empty after trimming, longer than maxGenreRunes, or
// containing a colon (a tell for key:value debris).
func parseGenres(raw string) []string {
	if raw == "" {
		return nil
	}

	var tokens []string
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil
	}

	genres := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if utf8.RuneCountInString(tok) > maxGenreRunes {
			continue
		}
		if strings.Contains(tok, ":") {
			continue
		}
		genres = append(genres, tok)
	}
	if len(genres) == 0 {
		return nil
	}
	return genres
}
