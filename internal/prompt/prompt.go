// File: internal/prompt/prompt.go
package prompt

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/autopilot-cli/internal/commands"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
	"github.com/xkilldash9x/autopilot-cli/internal/llmutil"
)

// DefaultTriggeringPrompt closes every model request.
const DefaultTriggeringPrompt = "Determine exactly one command to use, and respond using the format specified above:"

const responseFormat = `{
    "thoughts": {
        "text": "thought",
        "reasoning": "reasoning",
        "plan": "- short bulleted\n- list that conveys\n- long-term plan",
        "criticism": "constructive self-criticism",
        "speak": "thoughts summary to say to user"
    },
    "command": {
        "name": "command name",
        "args": {
            "arg name": "value"
        }
    }
}`

// TriggeringPrompt returns configured, or the default when it is blank.
func TriggeringPrompt(configured string) string {
	if strings.TrimSpace(configured) == "" {
		return DefaultTriggeringPrompt
	}
	return configured
}

// SystemPrompt renders the agent's identity, goals, the prompt lists, the
// available commands and the response format into one system message.
func SystemPrompt(ai config.AISettings, ps config.PromptSettings, descriptors []commands.Descriptor) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %s\n", ai.AIName, ai.AIRole)
	b.WriteString("Your decisions must always be made independently without seeking user assistance. " +
		"Play to your strengths as an LLM and pursue simple strategies with no legal complications.\n\n")

	if len(ai.AIGoals) > 0 {
		b.WriteString("GOALS:\n\n")
		writeNumbered(&b, ai.AIGoals)
		b.WriteString("\n")
	}

	b.WriteString("Constraints:\n")
	writeNumbered(&b, ps.Constraints)
	b.WriteString("\nCommands:\n")
	signatures := make([]string, len(descriptors))
	for i, d := range descriptors {
		signatures[i] = d.Signature()
	}
	writeNumbered(&b, signatures)
	b.WriteString("\nResources:\n")
	writeNumbered(&b, ps.Resources)
	b.WriteString("\nPerformance Evaluation:\n")
	writeNumbered(&b, ps.PerformanceEvaluations)

	b.WriteString("\nYou should only respond in JSON format as described below\nResponse Format:\n")
	b.WriteString(responseFormat)
	b.WriteString("\nEnsure the response can be parsed by a strict JSON parser.")

	if ai.APIBudget > 0 {
		fmt.Fprintf(&b, "\nIt takes money to let you run. Your API budget is $%.3f", ai.APIBudget)
	}
	return b.String()
}

func writeNumbered(b *strings.Builder, items []string) {
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}

// SelfFeedback builds the critique request sent when the operator asks the
// agent to evaluate its own proposed action.
func SelfFeedback(role string, t llmutil.Thoughts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Below is a message from me, an AI Agent, assuming the role of %s. "+
		"whilst keeping knowledge of my slight limitations as an AI Agent "+
		"Please evaluate my thought process, reasoning, and plan, and provide a concise paragraph outlining potential improvements. "+
		"Consider adding or removing ideas that do not align with my role and explaining why, "+
		"prioritizing thoughts based on their significance, or simply refining my overall thought process.", role)

	b.WriteString("\n\n")
	if t.Text != "" {
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString(t.Reasoning)
	for _, step := range t.Plan {
		b.WriteString("\n- ")
		b.WriteString(step)
	}
	return b.String()
}
