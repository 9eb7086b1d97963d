// internal/llmutil/repair.go
package llmutil

import (
	"strings"

	"go.uber.org/zap"
)

// Technique names one step of the repair chain.
type Technique string

const (
	TechniqueNone       Technique = ""
	TechniqueDirect     Technique = "direct_parse"
	TechniqueExtract    Technique = "delimiter_extraction"
	TechniqueCorrect    Technique = "syntax_correction"
	TechniqueCompletion Technique = "truncation_completion"
)

// maxCompletionCuts bounds how many trailing members truncation completion may drop.
const maxCompletionCuts = 8

// RepairResult records what the chain recovered and how.
type RepairResult struct {
	Action    map[string]any
	Technique Technique
	Problems  []string
}

// Valid reports whether a schema-valid action was recovered.
func (r RepairResult) Valid() bool { return r.Technique != TechniqueNone }

// Repairer recovers a structured action from raw model text.
type Repairer struct {
	logger *zap.Logger
}

// NewRepairer returns a Repairer that logs unrecoverable replies to logger.
func NewRepairer(logger *zap.Logger) *Repairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{logger: logger.Named("repair")}
}

// Repair returns the first schema-valid mapping produced by the chain, or the
// canonical empty mapping. It never panics and never returns nil.
func (r *Repairer) Repair(raw string) map[string]any {
	return r.Inspect(raw).Action
}

// Inspect runs the chain and reports which technique succeeded. The chain is:
// direct parse, delimiter-bounded extraction, quote/bracket correction and
// trailing-truncation completion. Problems holds the validation problems of the
// last candidate that parsed, for diagnosis.
func (r *Repairer) Inspect(raw string) (result RepairResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Repair chain panicked; using empty action.", zap.Any("panic_value", rec), zap.Stack("stack"))
			result = RepairResult{Action: map[string]any{}}
		}
	}()

	var lastProblems []string
	for _, step := range r.chain() {
		for _, candidate := range step.candidates(raw) {
			m, ok := decodeObject(candidate)
			if !ok {
				continue
			}
			res := Validate(m)
			if res.Valid {
				if step.name != TechniqueDirect {
					r.logger.Debug("Recovered action from malformed reply.", zap.String("technique", string(step.name)))
				}
				return RepairResult{Action: m, Technique: step.name}
			}
			lastProblems = res.Problems
		}
	}

	r.logger.Warn("Could not recover an action from the model reply.",
		zap.String("raw", truncateString(raw, 2000)),
		zap.Strings("problems", lastProblems),
	)
	return RepairResult{Action: map[string]any{}, Problems: lastProblems}
}

type repairStep struct {
	name       Technique
	candidates func(raw string) []string
}

func (r *Repairer) chain() []repairStep {
	return []repairStep{
		{name: TechniqueDirect, candidates: func(raw string) []string {
			return []string{strings.TrimSpace(raw)}
		}},
		{name: TechniqueExtract, candidates: func(raw string) []string {
			if obj, ok := extractObject(raw); ok {
				return []string{obj}
			}
			return nil
		}},
		{name: TechniqueCorrect, candidates: func(raw string) []string {
			var out []string
			if obj, ok := extractObject(raw); ok {
				out = append(out, correctSyntax(obj))
			}
			return append(out, correctSyntax(strings.TrimSpace(raw)))
		}},
		{name: TechniqueCompletion, candidates: completionCandidates},
	}
}

// completionCandidates closes a truncated object, then retries with trailing
// members dropped one at a time in case the cut landed inside a key or value.
func completionCandidates(raw string) []string {
	prefix, ok := extractPrefix(raw)
	if !ok {
		return nil
	}
	prefix = correctSyntax(prefix)

	out := []string{completeTruncated(prefix)}
	for i := 0; i < maxCompletionCuts; i++ {
		shorter, cut := dropLastMember(prefix)
		if !cut {
			break
		}
		prefix = shorter
		out = append(out, completeTruncated(prefix))
	}
	return out
}

func decodeObject(text string) (map[string]any, bool) {
	if text == "" || text[0] != '{' {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
