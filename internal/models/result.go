package models

// ChatResult is the full orchestrator response for one question, as
// returned by the platform's chat endpoint. It is stored verbatim on the
// resolved message so the inspector can show intents, plan and trace.
type ChatResult struct {
	Query             string                   `json:"query,omitempty"`
	FinalAnswer       string                   `json:"final_answer"`
	Intents           []string                 `json:"intents,omitempty"`
	Priority          string                   `json:"priority,omitempty"`
	Plan              []PlanStep               `json:"plan,omitempty"`
	Trace             []map[string]interface{} `json:"trace,omitempty"`
	Validation        map[string]interface{}   `json:"validation,omitempty"`
	Citations         []map[string]interface{} `json:"citations,omitempty"`
	SupportingContext []map[string]interface{} `json:"supporting_context,omitempty"`
	LLM               *LLMUsage                `json:"llm,omitempty"`
}

// PlanStep is one agent invocation in the orchestrator's plan.
type PlanStep struct {
	Agent       string `json:"agent"`
	Description string `json:"description"`
}

// LLMUsage reports which model produced the final answer.
type LLMUsage struct {
	Model string `json:"model,omitempty"`
	Used  bool   `json:"used"`
	Error string `json:"error,omitempty"`
}
