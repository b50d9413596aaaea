package advisor

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// vars maps placeholder names to values.
type vars map[string]string

// render expands {{name}} placeholders and {{#if name}}...{{/if}} blocks.
// A placeholder with no value is an error.
func render(tmpl string, v vars) (string, error) {
	out, err := expandConditionals(tmpl, v)
	if err != nil {
		return "", err
	}

	var missing []string
	out = varRe.ReplaceAllStringFunc(out, func(match string) string {
		name := varRe.FindStringSubmatch(match)[1]
		if val, ok := v[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// expandConditionals resolves the innermost {{#if}} block first, repeatedly.
func expandConditionals(tmpl string, v vars) (string, error) {
	out := tmpl
	for {
		closeIdx := strings.Index(out, ifCloseStr)
		if closeIdx == -1 {
			break
		}
		opens := ifOpenRe.FindAllStringSubmatchIndex(out[:closeIdx], -1)
		if opens == nil {
			return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
		}
		last := opens[len(opens)-1]
		name := out[last[2]:last[3]]

		var body string
		if v[name] != "" {
			body = out[last[1]:closeIdx]
		}
		out = out[:last[0]] + body + out[closeIdx+len(ifCloseStr):]
	}
	if loc := ifOpenRe.FindString(out); loc != "" {
		return "", fmt.Errorf("unclosed conditional block: %s", loc)
	}
	return out, nil
}

const insightTemplate = `You are a senior infrastructure engineer reviewing an automated repository diagnosis.

Repository: {{repo}}
Status: {{status}}
Reason: {{reason}}
Languages: {{languages}}
Framework: {{framework}}
CI: {{ci}}
{{#if vulnerabilities}}Known vulnerabilities: {{vulnerabilities}}
{{/if}}
Reply with one sentence for an operator: the single most useful next step for
this repository. Plain text, no markdown.`

const proposalTemplate = `You are preparing an automated pull request that stabilizes a repository's infrastructure.

Repository: {{repo}}
Status: {{status}}
Reason: {{reason}}
Health score: {{score}}/100
Languages: {{languages}}
CI: {{ci}}

Reply with a single JSON object and nothing else:
{"title": "<conventional-commit style PR title>", "body": "<markdown PR description>"}`

const troubleshootTemplate = `You are diagnosing a failed repository pipeline run. The most recent log lines follow.

---
{{logs}}
---

Name the most likely root cause in one sentence, then give a two-step fix as
"1." and "2." lines. Plain text, no markdown.`
