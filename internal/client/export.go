package client

import (
	"strings"
	"time"

	"curaai.dev/cura/internal/store"
)

const transcriptDivider = "\n-------------------\n"

// ExportFilename is cura-ai-<mode>-<YYYY-MM-DD>.txt.
func ExportFilename(mode store.Mode, now time.Time) string {
	return "cura-ai-" + string(mode) + "-" + now.Format("2006-01-02") + ".txt"
}

// FormatTranscript writes "[ROLE]\ntext\n" blocks joined by a divider line,
// in view order.
func FormatTranscript(messages []ViewMessage) string {
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, "["+strings.ToUpper(string(m.Role))+"]\n"+m.Text+"\n")
	}
	return strings.Join(blocks, transcriptDivider)
}
