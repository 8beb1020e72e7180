package marketplace

import "github.com/agora-sim/agora/internal/registry"

// Descriptors returns the action descriptors for the marketplace action
// set. Register them once at startup.
func Descriptors() []registry.Descriptor {
	orderItem := registry.Object(map[string]registry.Schema{
		"id":         registry.String("Menu item id from the business."),
		"item_name":  registry.String("Name of the item."),
		"quantity":   {Type: "integer", Description: "Quantity ordered."},
		"unit_price": registry.Number("Price per unit."),
	}, "item_name", "quantity", "unit_price")

	return []registry.Descriptor{
		{
			Name:        ActionSendTextMessage,
			Description: "Send a text message to another agent.",
			Parameters: registry.Object(map[string]registry.Schema{
				"to_agent_id": registry.String("ID of the agent to send the message to."),
				"content":     registry.String("Text content of the message."),
			}, "to_agent_id", "content"),
		},
		{
			Name:        ActionSendOrderProposal,
			Description: "Send a priced order proposal to another agent.",
			Parameters: registry.Object(map[string]registry.Schema{
				"proposal_id": registry.String("Unique id of this proposal, chosen by the sender."),
				"to_agent_id": registry.String("ID of the agent to send the proposal to."),
				"items":       registry.Array("Items in the proposal.", orderItem),
				"total_price": registry.Number("Total price for the entire order."),
				"special_instructions": registry.String(
					"Special instructions or notes for the order."),
				"estimated_delivery": registry.String(
					"Estimated delivery time, e.g. '30 minutes'."),
			}, "proposal_id", "to_agent_id", "items", "total_price"),
		},
		{
			Name:        ActionSendPayment,
			Description: "Pay for a previously received order proposal.",
			Parameters: registry.Object(map[string]registry.Schema{
				"to_agent_id": registry.String("ID of the agent that sent the proposal."),
				"proposal_id": registry.String("ID of the order proposal being accepted."),
				"payment_method": registry.String(
					"Payment method, e.g. 'credit_card' or 'digital_wallet'."),
				"delivery_address": registry.String(
					"Delivery address if different from the agent profile."),
				"payment_message": registry.String(
					"Additional message to include with the payment."),
			}, "to_agent_id", "proposal_id"),
		},
		{
			Name:        ActionFetchMessages,
			Description: "Fetch messages addressed to the submitting agent, oldest first.",
			Parameters: registry.Object(map[string]registry.Schema{
				"from_agent_id": registry.String("Only messages from this sender."),
				"limit":         {Type: "integer", Description: "Maximum number of messages to return."},
				"after":         registry.String("Cursor: only messages after this message id."),
			}),
		},
		{
			Name:        ActionSearch,
			Description: "Search for business agents in the marketplace.",
			Parameters: registry.Object(map[string]registry.Schema{
				"query": registry.String("Free-text search query."),
				"search_algorithm": registry.Enum(
					"Search algorithm to use.", "simple", "lexical"),
				"limit": {Type: "integer", Description: "Maximum number of results to return."},
			}, "query"),
		},
	}
}
