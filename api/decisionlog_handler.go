package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/decisionlog"
	"github.com/xraph/arbiter/id"
)

func (a *API) registerDecisionLogRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("decision-logs"))

	if err := g.GET("/decision-logs/:logId", a.getDecisionLog,
		forge.WithSummary("Get decision log"),
		forge.WithOperationID("getDecisionLog"),
		forge.WithResponseSchema(http.StatusOK, "Decision log", &decisionlog.Entry{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/decision-logs", a.listDecisionLogs,
		forge.WithSummary("Query decision logs"),
		forge.WithDescription("Returns recorded authorization decisions, newest first."),
		forge.WithOperationID("listDecisionLogs"),
		forge.WithRequestSchema(ListDecisionLogsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Decision log list", ListResponse[*decisionlog.Entry]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) getDecisionLog(ctx forge.Context, _ *GetDecisionLogRequest) (*decisionlog.Entry, error) {
	logID, err := id.ParseDecisionLogID(ctx.Param("logId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid decision log ID: %v", err))
	}

	e, err := a.eng.Store().GetDecisionLog(ctx.Context(), logID)
	if err != nil {
		return nil, mapError(err)
	}
	if _, tenantID := arbiter.TenantFromContext(ctx.Context()); tenantID != "" && e.TenantID != tenantID {
		return nil, forge.NotFound(fmt.Sprintf("decision log %s not found", logID))
	}

	return e, ctx.JSON(http.StatusOK, e)
}

func (a *API) listDecisionLogs(ctx forge.Context, req *ListDecisionLogsRequest) (*ListResponse[*decisionlog.Entry], error) {
	_, tenantID := arbiter.TenantFromContext(ctx.Context())
	filter := &decisionlog.QueryFilter{
		TenantID:     tenantID,
		SubjectKind:  req.SubjectKind,
		SubjectID:    req.SubjectID,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Decision:     req.Decision,
		PolicyID:     req.PolicyID,
		Limit:        defaultLimit(req.Limit),
		Offset:       req.Offset,
	}

	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest("invalid after timestamp")
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		filter.Before = &t
	}

	logs, err := a.eng.Store().ListDecisionLogs(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}
	total, err := a.eng.Store().CountDecisionLogs(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*decisionlog.Entry]{
		Items:  logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}
