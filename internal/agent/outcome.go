// internal/agent/outcome.go
package agent

import "fmt"

// OutcomeKind is the closed set of ways a dispatch can end.
type OutcomeKind int

const (
	// Executed means the handler ran and returned text.
	Executed OutcomeKind = iota
	// Refused means the result was withheld, e.g. it would not fit the budget.
	Refused
	// Faulted means lookup, argument binding or the handler failed.
	Faulted
)

func (k OutcomeKind) String() string {
	switch k {
	case Executed:
		return "executed"
	case Refused:
		return "refused"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is what the dispatcher hands back to the controller. Text is the
// final message recorded in history, after plugins and the budget check.
type Outcome struct {
	Kind    OutcomeKind
	Command string
	Text    string
	Code    ErrorCode
	Err     error
}

func executedOutcome(name, text string) Outcome {
	return Outcome{Kind: Executed, Command: name, Text: text}
}

func faultedOutcome(name string, code ErrorCode, err error) Outcome {
	return Outcome{Kind: Faulted, Command: name, Code: code, Err: err}
}

// oversizeText is recorded in place of a result that would overflow the context.
func oversizeText(name string) string {
	return fmt.Sprintf("Failure: command %s returned too much output. Do not execute this command again with the same arguments.", name)
}

func refusedOutcome(name string, code ErrorCode) Outcome {
	return Outcome{Kind: Refused, Command: name, Code: code, Text: oversizeText(name)}
}
