package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForDisplay produces a compact human-readable rendering of a tool
// result for forwarding to the client. This is separate from the raw JSON
// result fed back to the model: search results become a short Markdown
// digest, everything else is pretty-printed JSON.
func (r *Registry) FormatForDisplay(name string, result any) string {
	if name == "search_web" {
		if output, ok := result.(*SearchOutput); ok {
			return formatSearchResults(output)
		}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		r.logger.WithError(err).WithField("tool", name).Error("Failed to format tool result")
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// formatSearchResults renders up to the first three hits as Markdown
// bullets with a trailing count of results not shown.
func formatSearchResults(output *SearchOutput) string {
	if len(output.Results) == 0 {
		return fmt.Sprintf("No search results found for %q.", output.Query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Search results: %s\n\n", output.Query)

	shown := output.Results
	if len(shown) > 3 {
		shown = shown[:3]
	}
	for i, item := range shown {
		title := item.Title
		if title == "" {
			title = "Untitled"
		}
		link := item.Link
		if link == "" {
			link = "#"
		}
		snippet := item.Snippet
		if snippet == "" {
			snippet = "No description"
		}
		fmt.Fprintf(&b, "%d. **[%s](%s)**\n", i+1, title, link)
		fmt.Fprintf(&b, "   %s\n\n", snippet)
	}

	if remaining := len(output.Results) - 3; remaining > 0 {
		fmt.Fprintf(&b, "*%d more results not shown*\n", remaining)
	}

	return b.String()
}
