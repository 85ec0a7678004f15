package models

// ContextItemKind classifies a candidate message considered during context
// packing, for diagnostics and observability purposes.
type ContextItemKind string

const (
	ContextItemSummary  ContextItemKind = "summary"
	ContextItemHistory  ContextItemKind = "history"
	ContextItemTool     ContextItemKind = "tool"
	ContextItemIncoming ContextItemKind = "incoming"
)

// ContextItemReason explains why a candidate message was included in or
// dropped from the packed context.
type ContextItemReason string

const (
	ContextReasonIncluded    ContextItemReason = "included"
	ContextReasonOverBudget  ContextItemReason = "over_budget"
	ContextReasonMaxMessages ContextItemReason = "max_messages"
	ContextReasonReserved    ContextItemReason = "reserved"
)
