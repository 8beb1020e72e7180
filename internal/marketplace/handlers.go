package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/agora-sim/agora/internal/engine"
	"github.com/agora-sim/agora/internal/model"
	"github.com/agora-sim/agora/internal/query"
	"github.com/agora-sim/agora/internal/store"
)

const (
	defaultSearchLimit = 10
	defaultFetchLimit  = 100
)

// Marketplace bundles the handlers for the marketplace action set.
type Marketplace struct {
	logger     *slog.Logger
	fetchLimit int
}

// New returns a Marketplace whose handlers log through the given logger.
func New(logger *slog.Logger) *Marketplace {
	return &Marketplace{logger: logger, fetchLimit: defaultFetchLimit}
}

// WithFetchLimit overrides the inbox page size used when a fetch_messages
// call carries no explicit limit.
func (m *Marketplace) WithFetchLimit(n int) *Marketplace {
	if n > 0 {
		m.fetchLimit = n
	}
	return m
}

// Handlers returns the static dispatch table from action name to handler.
func (m *Marketplace) Handlers() map[string]engine.Handler {
	return map[string]engine.Handler{
		ActionSendTextMessage:   m.sendTextMessage,
		ActionSendOrderProposal: m.sendOrderProposal,
		ActionSendPayment:       m.sendPayment,
		ActionFetchMessages:     m.fetchMessages,
		ActionSearch:            m.search,
	}
}

// domainError builds a handler-reported failure. It is a valid protocol
// outcome, durably recorded like any other result.
func domainError(format string, args ...any) model.ActionResult {
	return model.ActionResult{
		Content: map[string]any{"error": fmt.Sprintf(format, args...)},
		IsError: true,
	}
}

// checkTarget verifies the recipient agent exists. Returns a non-nil domain
// error result when it does not.
func checkTarget(ctx context.Context, db store.Controller, toAgentID string) (*model.ActionResult, error) {
	_, err := db.Agents().GetByID(ctx, toAgentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			res := domainError("to_agent_id %s not found", toAgentID)
			return &res, nil
		}
		return nil, err
	}
	return nil, nil
}

func (m *Marketplace) sendTextMessage(ctx context.Context, act engine.Action, db store.Controller) (model.ActionResult, error) {
	msg, err := decode[TextMessage](act.Parameters)
	if err != nil {
		return model.ActionResult{}, err
	}
	if res, err := checkTarget(ctx, db, msg.ToAgentID); err != nil || res != nil {
		return deref(res), err
	}
	return model.ActionResult{
		Content:  act.Parameters,
		Metadata: map[string]any{"status": "sent"},
	}, nil
}

func (m *Marketplace) sendOrderProposal(ctx context.Context, act engine.Action, db store.Controller) (model.ActionResult, error) {
	proposal, err := decode[OrderProposal](act.Parameters)
	if err != nil {
		return model.ActionResult{}, err
	}
	if res, err := checkTarget(ctx, db, proposal.ToAgentID); err != nil || res != nil {
		return deref(res), err
	}
	if len(proposal.Items) == 0 {
		return domainError("proposal %s has no items", proposal.ProposalID), nil
	}
	return model.ActionResult{
		Content:  act.Parameters,
		Metadata: map[string]any{"status": "sent"},
	}, nil
}

// sendPayment validates the referenced proposal against the durable action
// log before accepting: the proposal must have been sent by the payee. The
// log itself is the source of truth, not any in-memory state.
func (m *Marketplace) sendPayment(ctx context.Context, act engine.Action, db store.Controller) (model.ActionResult, error) {
	payment, err := decode[Payment](act.Parameters)
	if err != nil {
		return model.ActionResult{}, err
	}
	if res, err := checkTarget(ctx, db, payment.ToAgentID); err != nil || res != nil {
		return deref(res), err
	}

	q := query.AgentID(payment.ToAgentID).
		And(query.RequestName(ActionSendOrderProposal)).
		And(query.RequestParameter("proposal_id", query.Eq, payment.ProposalID))
	proposals, err := db.Actions().Find(ctx, q, store.Range{})
	if err != nil {
		return model.ActionResult{}, err
	}
	if len(proposals) == 0 {
		return domainError("proposal %s from agent %s not found",
			payment.ProposalID, payment.ToAgentID), nil
	}

	proposal, err := decode[OrderProposal](proposals[0].Data.Request.Parameters)
	if err != nil {
		return model.ActionResult{}, err
	}

	return model.ActionResult{
		Content: map[string]any{
			"proposal_id": payment.ProposalID,
			"amount":      proposal.TotalPrice,
		},
		Metadata: map[string]any{"status": "paid"},
	}, nil
}

// fetchMessages reads the submitting agent's inbox. Every message-bearing
// action carries a to_agent_id parameter; filtering on it yields exactly the
// messages addressed to this agent, in (created_at, id) order.
func (m *Marketplace) fetchMessages(ctx context.Context, act engine.Action, db store.Controller) (model.ActionResult, error) {
	fetch, err := decode[FetchMessages](act.Parameters)
	if err != nil {
		return model.ActionResult{}, err
	}

	var q query.Query = query.RequestParameter("to_agent_id", query.Eq, act.AgentID)
	if fetch.FromAgentID != "" {
		q = q.And(query.AgentID(fetch.FromAgentID))
	}

	limit := fetch.Limit
	if limit <= 0 {
		limit = m.fetchLimit
	}

	// Fetch one extra row to detect whether more remain.
	rows, err := db.Actions().Find(ctx, q, store.Range{After: fetch.After, Limit: limit + 1})
	if err != nil {
		return model.ActionResult{}, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	messages := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, map[string]any{
			"id":            row.ID,
			"from_agent_id": row.Data.AgentID,
			"type":          row.Data.Request.Name,
			"parameters":    row.Data.Request.Parameters,
			"created_at":    row.CreatedAt,
		})
	}

	result := model.ActionResult{
		Content: map[string]any{
			"messages": messages,
			"has_more": hasMore,
		},
	}
	if len(rows) > 0 {
		result.Metadata = map[string]any{"cursor": rows[len(rows)-1].ID}
	}
	return result, nil
}

// search returns business agents ranked against the query. "lexical" (the
// default) ranks by query-token overlap with the business profile; "simple"
// ignores the query text and ranks by rating.
func (m *Marketplace) search(ctx context.Context, act engine.Action, db store.Controller) (model.ActionResult, error) {
	search, err := decode[Search](act.Parameters)
	if err != nil {
		return model.ActionResult{}, err
	}
	limit := search.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	algorithm := search.Algorithm
	if algorithm == "" {
		algorithm = "lexical"
	}

	// Business agents are the ones carrying a business profile.
	rows, err := db.Agents().Find(ctx,
		query.FieldCompare("$.metadata.business", query.Ne, nil), store.Range{})
	if err != nil {
		return model.ActionResult{}, err
	}

	switch algorithm {
	case "simple":
		sort.SliceStable(rows, func(i, j int) bool {
			return businessRating(rows[i].Data) > businessRating(rows[j].Data)
		})
	default:
		scores := make(map[string]int, len(rows))
		for _, row := range rows {
			scores[row.ID] = lexicalScore(search.Query, row.Data)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return scores[rows[i].ID] > scores[rows[j].ID]
		})
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	businesses := make([]model.AgentProfile, 0, len(rows))
	for _, row := range rows {
		businesses = append(businesses, row.Data)
	}
	return model.ActionResult{
		Content: map[string]any{
			"businesses":       businesses,
			"search_algorithm": algorithm,
		},
	}, nil
}

// lexicalScore counts how many query tokens occur in the agent's profile
// text. Zero is a valid score; ranking is relative, not a cutoff.
func lexicalScore(q string, profile model.AgentProfile) int {
	raw, err := json.Marshal(profile.Metadata)
	if err != nil {
		return 0
	}
	haystack := strings.ToLower(string(raw))
	score := 0
	for _, token := range strings.Fields(strings.ToLower(q)) {
		if strings.Contains(haystack, token) {
			score++
		}
	}
	return score
}

func businessRating(profile model.AgentProfile) float64 {
	business, ok := profile.Metadata["business"].(map[string]any)
	if !ok {
		return 0
	}
	rating, _ := business["rating"].(float64)
	return rating
}

func deref(res *model.ActionResult) model.ActionResult {
	if res == nil {
		return model.ActionResult{}
	}
	return *res
}
