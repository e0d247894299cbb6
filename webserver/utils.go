package webserver

import (
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/malonaz/wgpt/internal/thread"
)

// codeBlockRE matches ```lang content``` blocks.
var codeBlockRE = regexp.MustCompile("```([a-zA-Z]+)\n([\\s\\S]+?)```")

// formatMessage renders message text as HTML, turning fenced code blocks
// into highlighted <pre> blocks and preserving line breaks elsewhere. Code
// blocks are swapped out for NUL-delimited placeholders before escaping, so
// raw HTML in the message text itself is always escaped.
func formatMessage(content string) template.HTML {
	var blocks []string
	processed := codeBlockRE.ReplaceAllStringFunc(content, func(match string) string {
		parts := codeBlockRE.FindStringSubmatch(match)
		if len(parts) < 3 {
			return match
		}

		language := parts[1]
		code := strings.TrimSpace(parts[2])

		blocks = append(blocks, fmt.Sprintf(`<pre class="line-numbers"><code class="language-%s">%s</code></pre>`,
			html.EscapeString(language),
			html.EscapeString(code)))
		return codeBlockToken(len(blocks) - 1)
	})

	escaped := escapeWithBreaks(processed)
	for i, block := range blocks {
		escaped = strings.Replace(escaped, codeBlockToken(i), block, 1)
	}
	return template.HTML(escaped)
}

func codeBlockToken(i int) string {
	return fmt.Sprintf("\x00code-block-%d\x00", i)
}

func escapeWithBreaks(text string) string {
	escaped := template.HTMLEscapeString(text)
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// messageRole maps a role to its display label.
func messageRole(role thread.Role) string {
	switch role {
	case thread.RoleUser:
		return "You"
	case thread.RoleModel:
		return "Model"
	default:
		return "System"
	}
}

// messageText concatenates the text parts of a message.
func messageText(message *thread.Message) string {
	var texts []string
	for _, part := range message.Parts {
		if !part.IsData() {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// attachmentCount counts the inline-data parts of a message.
func attachmentCount(message *thread.Message) int {
	count := 0
	for _, part := range message.Parts {
		if part.IsData() {
			count++
		}
	}
	return count
}

func formatTimestamp(micros int64) string {
	return time.UnixMicro(micros).Format("Jan 2, 2006 3:04 PM")
}
