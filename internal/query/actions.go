package query

// Path constructors for the actions table's data document. The document
// shape is {agent_id, request: {name, parameters, metadata}, result:
// {content, is_error, metadata}} — see model.ActionData.

// AgentID matches the submitting agent of an action row.
func AgentID(value string) Field {
	return FieldEquals("$.agent_id", value)
}

// RequestName matches the action name of an action row.
func RequestName(value string) Field {
	return FieldEquals("$.request.name", value)
}

// RequestParameter builds a predicate on a field inside request.parameters.
func RequestParameter(path string, op Op, value any) Field {
	return FieldCompare("$.request.parameters."+path, op, value)
}

// ResultIsError matches action rows by the handler-reported error flag.
func ResultIsError(value bool) Field {
	return FieldEquals("$.result.is_error", value)
}

// ResultContent builds a predicate on a field inside result.content.
func ResultContent(path string, op Op, value any) Field {
	return FieldCompare("$.result.content."+path, op, value)
}
