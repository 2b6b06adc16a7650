package shanbay

import (
	"strings"

	"github.com/k3a/html2text"
)

// Normalizer converts a raw translation payload to plain text.
type Normalizer func(raw string) string

// HTMLToText strips tags and decodes entities.
func HTMLToText(raw string) string {
	return strings.TrimSpace(html2text.HTML2Text(raw))
}
