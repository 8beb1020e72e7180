// Package marketplace is the built-in action set for the agent marketplace
// simulation: direct messages, order proposals, payments against proposals,
// inbox fetches, and business search. Each action kind is a typed struct
// decoded from the schema-validated parameter map, dispatched through a
// static handler table keyed by action name.
package marketplace

import (
	"encoding/json"
	"fmt"
)

// Action names. The name doubles as the dispatch tag: the engine routes on
// it and stored rows are queryable by it.
const (
	ActionSendTextMessage   = "send_text_message"
	ActionSendOrderProposal = "send_order_proposal"
	ActionSendPayment       = "send_payment"
	ActionFetchMessages     = "fetch_messages"
	ActionSearch            = "search"
)

// TextMessage is a plain text message to another agent.
type TextMessage struct {
	ToAgentID string `json:"to_agent_id"`
	Content   string `json:"content"`
}

// OrderItem is one line of an order proposal.
type OrderItem struct {
	ID        string  `json:"id"`
	ItemName  string  `json:"item_name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderProposal is a priced offer sent to another agent. ProposalID is the
// sender-chosen handle a later payment refers to.
type OrderProposal struct {
	ProposalID          string      `json:"proposal_id"`
	ToAgentID           string      `json:"to_agent_id"`
	Items               []OrderItem `json:"items"`
	TotalPrice          float64     `json:"total_price"`
	SpecialInstructions string      `json:"special_instructions,omitempty"`
	EstimatedDelivery   string      `json:"estimated_delivery,omitempty"`
}

// Payment accepts a previously received order proposal.
type Payment struct {
	ToAgentID      string `json:"to_agent_id"`
	ProposalID     string `json:"proposal_id"`
	PaymentMethod  string `json:"payment_method,omitempty"`
	DeliveryAddr   string `json:"delivery_address,omitempty"`
	PaymentMessage string `json:"payment_message,omitempty"`
}

// FetchMessages reads the submitting agent's inbox: every message-bearing
// action addressed to it, oldest first, cursor-paginated.
type FetchMessages struct {
	FromAgentID string `json:"from_agent_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	After       string `json:"after,omitempty"`
}

// Search finds business agents matching a free-text query.
type Search struct {
	Query     string `json:"query"`
	Algorithm string `json:"search_algorithm,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// decode round-trips a validated parameter map into the typed action
// struct. The schema guarantees shape, so a failure here is a fault, not a
// domain error.
func decode[T any](params map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(params)
	if err != nil {
		return out, fmt.Errorf("marketplace: encode parameters: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("marketplace: decode parameters: %w", err)
	}
	return out, nil
}
