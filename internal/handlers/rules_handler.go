package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
	"transaction-reconciliation-backend/internal/services/rules"
)

type RulesHandler struct {
	repo  *repository.MatchingRuleRepository
	store *rules.Store
}

func NewRulesHandler(repo *repository.MatchingRuleRepository, store *rules.Store) *RulesHandler {
	return &RulesHandler{repo: repo, store: store}
}

func (h *RulesHandler) List(c *gin.Context) {
	filter := repository.RuleListFilter{RuleType: c.Query("ruleType")}
	if v := c.Query("enabled"); v != "" {
		enabled := v == "true"
		filter.Enabled = &enabled
	}

	ruleList, err := h.repo.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(ruleList), "data": ruleList})
}

func (h *RulesHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule ID"})
		return
	}
	rule, err := h.repo.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "matching rule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rule})
}

type rulePayload struct {
	RuleName         string                     `json:"ruleName"`
	Description      string                     `json:"description"`
	RuleType         string                     `json:"ruleType"`
	Priority         *int                       `json:"priority"`
	Enabled          *bool                      `json:"enabled"`
	ExactMatchFields []string                   `json:"exactMatchFields"`
	PartialMatch     *models.PartialMatchConfig `json:"partialMatchConfig"`
}

func validRuleType(t string) bool {
	switch t {
	case models.RuleTypeExactMatch, models.RuleTypePartialMatch, models.RuleTypeReferenceMatch:
		return true
	}
	return false
}

// Create persists a new rule and invalidates the rule cache.
func (h *RulesHandler) Create(c *gin.Context) {
	var payload rulePayload
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.RuleName == "" || !validRuleType(payload.RuleType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ruleName and a valid ruleType are required"})
		return
	}

	actor := actorFrom(c)
	rule := &models.MatchingRule{
		ID:          uuid.New(),
		RuleName:    payload.RuleName,
		Description: payload.Description,
		RuleType:    payload.RuleType,
		Enabled:     true,
		CreatedBy:   actor.ID,
		UpdatedBy:   actor.ID,
	}
	if payload.Priority != nil {
		rule.Priority = *payload.Priority
	}
	if payload.Enabled != nil {
		rule.Enabled = *payload.Enabled
	}
	if len(payload.ExactMatchFields) > 0 {
		rule.ExactMatchFields = datatypes.NewJSONSlice(payload.ExactMatchFields)
	}
	if payload.PartialMatch != nil {
		cfg := datatypes.NewJSONType(*payload.PartialMatch)
		rule.PartialMatch = &cfg
	}

	if err := h.repo.Create(rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.store.Invalidate()

	c.JSON(http.StatusCreated, gin.H{"message": "matching rule created successfully", "data": rule})
}

// Update mutates an existing rule and invalidates the rule cache.
func (h *RulesHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule ID"})
		return
	}
	rule, err := h.repo.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "matching rule not found"})
		return
	}

	var payload rulePayload
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if payload.RuleName != "" {
		rule.RuleName = payload.RuleName
	}
	if payload.Description != "" {
		rule.Description = payload.Description
	}
	if payload.RuleType != "" {
		if !validRuleType(payload.RuleType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ruleType"})
			return
		}
		rule.RuleType = payload.RuleType
	}
	if payload.Priority != nil {
		rule.Priority = *payload.Priority
	}
	if payload.Enabled != nil {
		rule.Enabled = *payload.Enabled
	}
	if len(payload.ExactMatchFields) > 0 {
		rule.ExactMatchFields = datatypes.NewJSONSlice(payload.ExactMatchFields)
	}
	if payload.PartialMatch != nil {
		cfg := datatypes.NewJSONType(*payload.PartialMatch)
		rule.PartialMatch = &cfg
	}
	rule.UpdatedBy = actorFrom(c).ID
	rule.UpdatedAt = time.Now()

	if err := h.repo.Save(rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.store.Invalidate()

	c.JSON(http.StatusOK, gin.H{"message": "matching rule updated successfully", "data": rule})
}

// Toggle flips a rule's enabled flag and invalidates the rule cache.
func (h *RulesHandler) Toggle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule ID"})
		return
	}
	rule, err := h.repo.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "matching rule not found"})
		return
	}

	rule.Enabled = !rule.Enabled
	rule.UpdatedBy = actorFrom(c).ID
	rule.UpdatedAt = time.Now()
	if err := h.repo.Save(rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.store.Invalidate()

	state := "disabled"
	if rule.Enabled {
		state = "enabled"
	}
	c.JSON(http.StatusOK, gin.H{"message": "matching rule " + state, "data": rule})
}

// Reorder assigns new priorities to a set of rules in one call and
// invalidates the rule cache.
func (h *RulesHandler) Reorder(c *gin.Context) {
	var payload struct {
		Rules []struct {
			ID       string `json:"id"`
			Priority int    `json:"priority"`
		} `json:"rules"`
	}
	if err := c.BindJSON(&payload); err != nil || len(payload.Rules) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rules array with id and priority is required"})
		return
	}

	actor := actorFrom(c)
	updated := make([]*models.MatchingRule, 0, len(payload.Rules))
	for _, entry := range payload.Rules {
		id, err := uuid.Parse(entry.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule ID: " + entry.ID})
			return
		}
		rule, err := h.repo.GetByID(id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "matching rule not found: " + entry.ID})
			return
		}
		rule.Priority = entry.Priority
		rule.UpdatedBy = actor.ID
		rule.UpdatedAt = time.Now()
		if err := h.repo.Save(rule); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		updated = append(updated, rule)
	}
	h.store.Invalidate()

	c.JSON(http.StatusOK, gin.H{"message": "matching rules reordered successfully", "data": updated})
}

// Delete removes a rule and invalidates the rule cache.
func (h *RulesHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule ID"})
		return
	}
	if _, err := h.repo.GetByID(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "matching rule not found"})
		return
	}
	if err := h.repo.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.store.Invalidate()

	c.JSON(http.StatusOK, gin.H{"message": "matching rule deleted successfully"})
}
