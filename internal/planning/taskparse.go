package planning

import "strings"

// ParseTasks splits generated text into task descriptions. Each non-empty
// line becomes one task, with any leading bullet marker removed.
func ParseTasks(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		for _, marker := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(line, marker) {
				line = strings.TrimSpace(line[len(marker):])
				break
			}
		}
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
