package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/policy"
)

func (a *API) registerPolicyRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("policies"))

	if err := g.POST("/policies", a.createPolicy,
		forge.WithSummary("Create policy"),
		forge.WithDescription("Creates a new policy in the caller's tenant."),
		forge.WithOperationID("createPolicy"),
		forge.WithRequestSchema(CreatePolicyRequest{}),
		forge.WithCreatedResponse(&policy.Policy{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/policies/:policyId", a.getPolicy,
		forge.WithSummary("Get policy"),
		forge.WithOperationID("getPolicy"),
		forge.WithResponseSchema(http.StatusOK, "Policy details", &policy.Policy{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/policies/:policyId", a.updatePolicy,
		forge.WithSummary("Update policy"),
		forge.WithDescription("Updates a policy and bumps its version."),
		forge.WithOperationID("updatePolicy"),
		forge.WithRequestSchema(UpdatePolicyRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated policy", &policy.Policy{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/policies/:policyId", a.deletePolicy,
		forge.WithSummary("Delete policy"),
		forge.WithOperationID("deletePolicy"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/policies", a.listPolicies,
		forge.WithSummary("List policies"),
		forge.WithDescription("Lists policies by priority, highest first."),
		forge.WithOperationID("listPolicies"),
		forge.WithRequestSchema(ListPoliciesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Policy list", ListResponse[*policy.Policy]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) createPolicy(ctx forge.Context, req *CreatePolicyRequest) (*policy.Policy, error) {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	p := &policy.Policy{
		Name:        req.Name,
		Description: req.Description,
		Effect:      policy.Effect(req.Effect),
		Priority:    req.Priority,
		IsActive:    active,
		Subject:     req.Subject,
		Resource:    req.Resource,
		Action:      req.Action,
		Environment: req.Environment,
		Metadata:    req.Metadata,
	}

	if err := a.eng.CreatePolicy(ctx.Context(), p); err != nil {
		return nil, mapError(err)
	}

	return p, ctx.JSON(http.StatusCreated, p)
}

func (a *API) getPolicy(ctx forge.Context, _ *GetPolicyRequest) (*policy.Policy, error) {
	polID, err := id.ParsePolicyID(ctx.Param("policyId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid policy ID: %v", err))
	}

	p, err := a.eng.GetPolicy(ctx.Context(), polID)
	if err != nil {
		return nil, mapError(err)
	}

	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) updatePolicy(ctx forge.Context, req *UpdatePolicyRequest) (*policy.Policy, error) {
	polID, err := id.ParsePolicyID(ctx.Param("policyId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid policy ID: %v", err))
	}

	p, err := a.eng.GetPolicy(ctx.Context(), polID)
	if err != nil {
		return nil, mapError(err)
	}

	applyUpdate(p, req)

	if err := a.eng.UpdatePolicy(ctx.Context(), p); err != nil {
		return nil, mapError(err)
	}

	return p, ctx.JSON(http.StatusOK, p)
}

func applyUpdate(p *policy.Policy, req *UpdatePolicyRequest) {
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Effect != "" {
		p.Effect = policy.Effect(req.Effect)
	}
	if req.Priority != nil {
		p.Priority = *req.Priority
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.Subject != nil {
		p.Subject = req.Subject
	}
	if req.Resource != nil {
		p.Resource = *req.Resource
	}
	if req.Action != nil {
		p.Action = *req.Action
	}
	if req.Environment != nil {
		p.Environment = req.Environment
	}
	if req.Metadata != nil {
		p.Metadata = req.Metadata
	}
}

func (a *API) deletePolicy(ctx forge.Context, _ *GetPolicyRequest) (*struct{}, error) {
	polID, err := id.ParsePolicyID(ctx.Param("policyId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid policy ID: %v", err))
	}

	if err := a.eng.DeletePolicy(ctx.Context(), polID); err != nil {
		return nil, mapError(err)
	}

	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listPolicies(ctx forge.Context, req *ListPoliciesRequest) (*ListResponse[*policy.Policy], error) {
	filter := &policy.ListFilter{
		Search: req.Search,
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	}

	if req.Effect != "" {
		filter.Effect = policy.Effect(req.Effect)
	}
	switch req.Active {
	case "true":
		t := true
		filter.IsActive = &t
	case "false":
		f := false
		filter.IsActive = &f
	}

	policies, total, err := a.eng.ListPolicies(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*policy.Policy]{
		Items:  policies,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}
