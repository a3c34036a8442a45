package api

// DecisionResponse is the response for a policy decision.
type DecisionResponse struct {
	Allowed        bool        `json:"allowed" description:"Whether the request is allowed"`
	Decision       string      `json:"decision" description:"Decision (allow or deny)"`
	Reason         string      `json:"reason" description:"Human-readable reason"`
	DeniedByPolicy bool        `json:"denied_by_policy" description:"A deny policy matched"`
	DefaultDeny    bool        `json:"default_deny" description:"No policy decided; denied by default"`
	MatchedBy      []MatchInfo `json:"matched_by,omitempty" description:"Deciding policy"`
	EvalTimeNs     int64       `json:"eval_time_ns" description:"Evaluation time in nanoseconds"`
}

// MatchInfo identifies a matched policy.
type MatchInfo struct {
	PolicyID   string `json:"policy_id" description:"Policy identifier"`
	PolicyName string `json:"policy_name" description:"Policy name"`
	Effect     string `json:"effect" description:"Policy effect"`
	Priority   int    `json:"priority" description:"Policy priority"`
}

// WouldDenyResponse answers a deny-only check.
type WouldDenyResponse struct {
	WouldDeny bool `json:"would_deny" description:"Whether an active deny policy matches"`
}

// ExplainResponse reports a decision with a per-policy trace.
type ExplainResponse struct {
	Decision DecisionResponse `json:"decision" description:"The decision"`
	Matches  []MatchInfo      `json:"matches" description:"Every matching active policy in store order"`
	Trace    []TraceStep      `json:"trace" description:"One entry per active policy"`
}

// TraceStep is a single policy match attempt.
type TraceStep struct {
	MatchInfo
	Matched        bool   `json:"matched" description:"Whether the policy matched"`
	MismatchReason string `json:"mismatch_reason,omitempty" description:"First failing condition"`
}

// BatchEvaluateResponse contains results for multiple decisions.
type BatchEvaluateResponse struct {
	Results []DecisionResponse `json:"results" description:"Decisions in request order"`
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}
