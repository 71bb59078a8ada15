package ingest

import "strings"

// Normalize splits a raw Discord radio message into the driver tag and the
// display text.
//
// The driver name sits between the first pair of backticks, e.g.
// "`Leclerc`". A leading emoji marker like ":studio_microphone:" is dropped
// together with the separator that follows it. A message that is nothing but
// the marker keeps its trimmed raw text rather than collapsing to "".
// The empty driver string means no tag was found; the function never fails.
func Normalize(raw string) (driver, text string) {
	text = strings.TrimSpace(raw)

	if left := strings.IndexByte(raw, '`'); left != -1 {
		if right := strings.IndexByte(raw[left+1:], '`'); right != -1 {
			driver = strings.TrimSpace(raw[left+1 : left+1+right])
		}
	}

	if strings.HasPrefix(text, ":") {
		if _, rest, ok := strings.Cut(text, " "); ok {
			text = rest
		}
	}

	return driver, strings.TrimSpace(text)
}
