package exec

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/dagrun/dagrun/flow"
)

// buildTaskPrompt renders a node's task into an LLM prompt. The task text
// comes from the node's "task" config entry; the run's shared variables are
// appended as a JSON context block in sorted key order so prompts are
// stable across runs.
func buildTaskPrompt(node flow.Node, vars map[string]any) (string, error) {
	task, _ := node.Config["task"].(string)
	if task == "" {
		return "", fmt.Errorf("node %s: task config entry required", node.ID)
	}

	var sb strings.Builder
	sb.WriteString(task)

	if len(vars) > 0 {
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\n\nContext variables:\n")
		for _, k := range keys {
			val, err := json.Marshal(vars[k])
			if err != nil {
				continue
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.Write(val)
			sb.WriteString("\n")
		}
	}

	if format, _ := node.Config["output_format"].(string); format != "" {
		sb.WriteString("\nRespond with ")
		sb.WriteString(format)
		sb.WriteString(" only, no additional text.")
	}

	return sb.String(), nil
}

// parseTaskResult interprets an LLM response. When the text is a JSON
// object or array it is decoded so downstream conditions can reach into it
// with dotted paths; otherwise the trimmed text is returned as a string.
func parseTaskResult(text string) any {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return trimmed
}
