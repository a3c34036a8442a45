package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/policy"
)

func (a *API) registerDecisionRoutes(router forge.Router) error {
	g := router.Group("/v1/authz", forge.WithGroupTags("authorization"))

	if err := g.POST("/evaluate", a.evaluate,
		forge.WithSummary("Evaluate policies"),
		forge.WithDescription("Decides the request against the tenant's active policies. Deny overrides allow; no match denies by default."),
		forge.WithOperationID("authzEvaluate"),
		forge.WithRequestSchema(EvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Decision", DecisionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/enforce", a.enforce,
		forge.WithSummary("Enforce policies"),
		forge.WithDescription("Returns 200 if allowed, 403 if denied."),
		forge.WithOperationID("authzEnforce"),
		forge.WithRequestSchema(EvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Allowed", DecisionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/would-deny", a.wouldDeny,
		forge.WithSummary("Deny check"),
		forge.WithDescription("Reports whether any active deny policy matches, without considering allow policies."),
		forge.WithOperationID("authzWouldDeny"),
		forge.WithRequestSchema(EvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Deny check result", WouldDenyResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/explain", a.explain,
		forge.WithSummary("Explain decision"),
		forge.WithDescription("Returns the decision with every matching policy and a per-policy trace."),
		forge.WithOperationID("authzExplain"),
		forge.WithRequestSchema(EvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Explanation", ExplainResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/batch-evaluate", a.batchEvaluate,
		forge.WithSummary("Batch evaluate"),
		forge.WithDescription("Decides multiple requests in one call."),
		forge.WithOperationID("authzBatchEvaluate"),
		forge.WithRequestSchema(BatchEvaluateRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Batch results", BatchEvaluateResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) evaluate(ctx forge.Context, req *EvaluateRequest) (*DecisionResponse, error) {
	if err := checkEvaluateRequest(req); err != nil {
		return nil, err
	}

	result, err := a.eng.Evaluate(ctx.Context(), toEvaluationContext(req))
	if err != nil {
		return nil, mapError(err)
	}

	resp := toDecisionResponse(result)
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) enforce(ctx forge.Context, req *EvaluateRequest) (*DecisionResponse, error) {
	if err := checkEvaluateRequest(req); err != nil {
		return nil, err
	}

	result, err := a.eng.Evaluate(ctx.Context(), toEvaluationContext(req))
	if err != nil {
		return nil, mapError(err)
	}

	resp := toDecisionResponse(result)
	if !result.Allowed() {
		return resp, ctx.JSON(http.StatusForbidden, resp)
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) wouldDeny(ctx forge.Context, req *EvaluateRequest) (*WouldDenyResponse, error) {
	if err := checkEvaluateRequest(req); err != nil {
		return nil, err
	}

	denied, err := a.eng.WouldDeny(ctx.Context(), toEvaluationContext(req))
	if err != nil {
		return nil, mapError(err)
	}

	resp := &WouldDenyResponse{WouldDeny: denied}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) explain(ctx forge.Context, req *EvaluateRequest) (*ExplainResponse, error) {
	if err := checkEvaluateRequest(req); err != nil {
		return nil, err
	}

	exp, err := a.eng.Explain(ctx.Context(), toEvaluationContext(req))
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ExplainResponse{
		Decision: *toDecisionResponse(exp.Result),
		Matches:  make([]MatchInfo, 0, len(exp.Matches)),
		Trace:    make([]TraceStep, 0, len(exp.Trace)),
	}
	for _, m := range exp.Matches {
		resp.Matches = append(resp.Matches, toMatchInfo(m.Policy))
	}
	for _, step := range exp.Trace {
		resp.Trace = append(resp.Trace, TraceStep{
			MatchInfo:      toMatchInfo(step.Policy),
			Matched:        step.Matched,
			MismatchReason: step.MismatchReason,
		})
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) batchEvaluate(ctx forge.Context, req *BatchEvaluateRequest) (*BatchEvaluateResponse, error) {
	if len(req.Requests) == 0 {
		return nil, forge.BadRequest("requests cannot be empty")
	}

	results := make([]DecisionResponse, len(req.Requests))
	for i := range req.Requests {
		if err := checkEvaluateRequest(&req.Requests[i]); err != nil {
			return nil, err
		}
		result, err := a.eng.Evaluate(ctx.Context(), toEvaluationContext(&req.Requests[i]))
		if err != nil {
			return nil, mapError(err)
		}
		results[i] = *toDecisionResponse(result)
	}

	resp := &BatchEvaluateResponse{Results: results}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func checkEvaluateRequest(req *EvaluateRequest) error {
	if req.Action == "" || req.Resource.Type == "" {
		return forge.BadRequest("action and resource.type are required")
	}
	return nil
}

func toEvaluationContext(r *EvaluateRequest) *arbiter.EvaluationContext {
	ec := &arbiter.EvaluationContext{
		Subject: arbiter.Subject{
			Kind:       arbiter.SubjectKind(r.Subject.Kind),
			ID:         r.Subject.ID,
			Roles:      r.Subject.Roles,
			Attributes: r.Subject.Attributes,
		},
		Resource: arbiter.Resource{
			Type:       r.Resource.Type,
			ID:         r.Resource.ID,
			Attributes: r.Resource.Attributes,
		},
		Action: r.Action,
	}
	if r.Environment != nil {
		ec.Environment = &arbiter.Environment{Attributes: r.Environment}
	}
	return ec
}

func toDecisionResponse(r *arbiter.EvaluationResult) *DecisionResponse {
	resp := &DecisionResponse{
		Allowed:        r.Allowed(),
		Decision:       string(r.Decision),
		Reason:         r.Reason,
		DeniedByPolicy: r.DeniedByPolicy,
		DefaultDeny:    r.DefaultDeny,
		EvalTimeNs:     r.EvalTimeNs,
	}
	for _, p := range r.MatchedPolicies {
		resp.MatchedBy = append(resp.MatchedBy, toMatchInfo(p))
	}
	return resp
}

func toMatchInfo(p *policy.Policy) MatchInfo {
	if p == nil {
		return MatchInfo{}
	}
	return MatchInfo{
		PolicyID:   p.ID.String(),
		PolicyName: p.Name,
		Effect:     string(p.Effect),
		Priority:   p.Priority,
	}
}
