// Package web provides HTTP handlers and REST API endpoints for rules, workflows and executions.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	engine    *services.Engine
	validator *validator.Validate
}

func NewAPIHandlers(engine *services.Engine, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		validator: validator,
	}
}

// RegisterRoutes mounts every endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	r := router.Group("/rules")
	r.Get("/", h.GetRules)
	r.Post("/", h.CreateRule)
	r.Get("/:id", h.GetRule)
	r.Patch("/:id/active", h.SetRuleActive)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id/active", h.SetWorkflowActive)

	router.Post("/triggers/evaluate", h.EvaluateTriggers)
	router.Post("/events", h.HandleEvent)

	e := router.Group("/executions")
	e.Get("/", h.GetExecutions)
	e.Post("/", h.StartExecution)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Post("/:id/resume", h.ResumeExecution)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, ok := h.engine.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	rules := h.engine.Rules(c.Context())

	return c.JSON(fiber.Map{
		"rules":       rules,
		"total_count": len(rules),
	})
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, err := h.engine.Rule(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var rule models.Rule
	if err := c.Bind().JSON(&rule); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.engine.RegisterRule(c.Context(), &rule); err != nil {
		return handleServiceError(c, err)
	}

	created, err := h.engine.Rule(c.Context(), rule.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) SetRuleActive(c fiber.Ctx) error {
	active, err := h.parseActive(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.engine.SetRuleActive(c.Context(), c.Params("id"), active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows := h.engine.Workflows(c.Context())

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.engine.Workflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.engine.RegisterWorkflow(c.Context(), &workflow); err != nil {
		return handleServiceError(c, err)
	}

	created, err := h.engine.Workflow(c.Context(), workflow.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) SetWorkflowActive(c fiber.Ctx) error {
	active, err := h.parseActive(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.engine.SetWorkflowActive(c.Context(), c.Params("id"), active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) parseActive(c fiber.Ctx) (bool, error) {
	var req SetActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return false, err
	}

	if err := h.validator.Struct(req); err != nil {
		return false, err
	}

	return *req.Active, nil
}

func (h *APIHandlers) EvaluateTriggers(c fiber.Ctx) error {
	var req EvaluateTriggersRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	matches, err := h.engine.EvaluateTriggers(c.Context(), req.Context, req.Industry)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(EvaluateTriggersResponse{
		Matches: transformMatches(matches),
		Actions: collectActions(matches),
	})
}

// HandleEvent evaluates an event and starts the matched workflows. Partial
// start failures are reported in the body with a 200 status.
func (h *APIHandlers) HandleEvent(c fiber.Ctx) error {
	var event models.ConversationEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	outcome, err := h.engine.HandleEvent(c.Context(), event)
	if outcome == nil {
		return handleServiceError(c, err)
	}

	return c.JSON(transformOutcome(outcome, err))
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.engine.StartExecution(c.Context(), req.WorkflowID, req.ConversationID, req.Variables)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	filter := models.ExecutionFilter{
		WorkflowID:     c.Query("workflow_id"),
		ConversationID: c.Query("conversation_id"),
	}

	executions, err := h.engine.ListExecutions(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ExecutionsResponse{
		Executions: executions,
		TotalCount: len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.engine.GetExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// CancelExecution requests cancellation. A running execution stops before
// its next step, so the response is 202 with the last recorded state.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.engine.CancelExecution(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	execution, err := h.engine.GetExecution(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	execution, err := h.engine.ResumeExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}
