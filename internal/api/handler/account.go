// Package handler implements the HTTP handlers of the factory API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"

	"github.com/edvin/accountfactory/internal/api/request"
	"github.com/edvin/accountfactory/internal/api/response"
	"github.com/edvin/accountfactory/internal/metrics"
	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/starter"
)

// WorkflowStarter launches and names account-creation runs.
type WorkflowStarter interface {
	Start(ctx context.Context, req model.ProvisionRequest) (starter.StartResult, error)
}

// AccountLookup resolves existing member accounts by name.
type AccountLookup interface {
	AccountIDByName(ctx context.Context, name string) (string, bool, error)
}

// ExecutionDescriber reads workflow execution state from Temporal.
type ExecutionDescriber interface {
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
}

// Account handles account provisioning endpoints.
type Account struct {
	starter  WorkflowStarter
	accounts AccountLookup
	temporal ExecutionDescriber
	logger   zerolog.Logger
}

// NewAccount creates an Account handler.
func NewAccount(s WorkflowStarter, accounts AccountLookup, temporal ExecutionDescriber, logger zerolog.Logger) *Account {
	return &Account{starter: s, accounts: accounts, temporal: temporal, logger: logger}
}

// Create starts an account provisioning run.
func (h *Account) Create(w http.ResponseWriter, r *http.Request) {
	req, fields, err := request.DecodeProvisionRequest(r.Body)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fields != nil {
		response.WriteValidationErrors(w, fields)
		return
	}

	result, err := h.starter.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, starter.ErrNamesExhausted) {
			response.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("account", req.AccountName).Msg("start workflow failed")
		response.WriteError(w, http.StatusInternalServerError, "could not start provisioning run")
		return
	}

	metrics.RunsStarted.Inc()
	response.WriteJSON(w, http.StatusAccepted, result)
}

// NameAvailability reports whether an account name is free in the
// organization. Taken names come back with the existing account's ID.
func (h *Account) NameAvailability(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	accountID, found, err := h.accounts.AccountIDByName(r.Context(), name)
	if err != nil {
		h.logger.Error().Err(err).Str("name", name).Msg("name availability check failed")
		response.WriteError(w, http.StatusInternalServerError, "could not check name availability")
		return
	}
	body := map[string]any{
		"name":      name,
		"available": !found,
	}
	if found {
		body["account_id"] = accountID
	}
	response.WriteJSON(w, http.StatusOK, body)
}

// ExecutionStatus returns the state of one provisioning run.
func (h *Account) ExecutionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	desc, err := h.temporal.DescribeWorkflowExecution(r.Context(), id, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			response.WriteError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.Error().Err(err).Str("execution_id", id).Msg("describe execution failed")
		response.WriteError(w, http.StatusInternalServerError, "could not describe execution")
		return
	}

	info := desc.GetWorkflowExecutionInfo()
	body := map[string]any{
		"execution_id": id,
		"status":       info.GetStatus().String(),
	}
	if start := info.GetStartTime(); start != nil {
		body["started_at"] = start.AsTime()
	}
	if close := info.GetCloseTime(); close != nil {
		body["closed_at"] = close.AsTime()
	}
	response.WriteJSON(w, http.StatusOK, body)
}
