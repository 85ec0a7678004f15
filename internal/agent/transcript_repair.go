package agent

import "github.com/sagerun/sage/pkg/models"

// HistoryMessages converts a recorded session log into the provider-shape
// conversation Loop.Resume seeds from, repairing the transcript first:
// orphaned tool results (no matching assistant tool call) are dropped and
// results missing a call id are matched to the oldest unanswered call, so
// a replay never presents a provider with an unbalanced tool exchange.
func HistoryMessages(history []*models.Message) []CompletionMessage {
	repaired := repairTranscript(history)
	out := make([]CompletionMessage, 0, len(repaired))
	for _, msg := range repaired {
		switch msg.Role {
		case models.RoleUser:
			out = append(out, CompletionMessage{Role: "user", Content: msg.Content})
		case models.RoleAssistant:
			out = append(out, CompletionMessage{Role: "assistant", Content: msg.Content, ToolCalls: msg.ToolCalls})
		case models.RoleTool:
			results := make([]CompletionToolResult, 0, len(msg.ToolResults))
			for _, res := range msg.ToolResults {
				results = append(results, CompletionToolResult{
					ToolCallID: res.CallID,
					Content:    toolResultContent(res),
					IsError:    !res.Success,
				})
			}
			out = append(out, CompletionMessage{Role: "tool", ToolResults: results})
		default:
			// Recorded system/error notes are not replayed: the system
			// prompt is supplied per-request by LoopConfig.
		}
	}
	return out
}

func repairTranscript(history []*models.Message) []*models.Message {
	if len(history) == 0 {
		return history
	}

	pending := make(map[string]struct{})
	pendingOrder := make([]string, 0)
	repaired := make([]*models.Message, 0, len(history))

	clearPending := func() {
		for k := range pending {
			delete(pending, k)
		}
		pendingOrder = pendingOrder[:0]
	}

	for _, msg := range history {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case models.RoleAssistant:
			clearPending()
			if len(msg.ToolCalls) > 0 {
				for _, call := range msg.ToolCalls {
					if call.ID == "" {
						continue
					}
					pending[call.ID] = struct{}{}
					pendingOrder = append(pendingOrder, call.ID)
				}
			}
			repaired = append(repaired, msg)
		case models.RoleTool:
			if len(msg.ToolResults) == 0 {
				continue
			}
			fixed := make([]models.ToolResult, 0, len(msg.ToolResults))
			for _, result := range msg.ToolResults {
				res := result
				if res.CallID == "" && len(pendingOrder) > 0 {
					res.CallID = pendingOrder[0]
				}
				if res.CallID == "" {
					continue
				}
				if _, ok := pending[res.CallID]; ok {
					delete(pending, res.CallID)
					pendingOrder = removeID(pendingOrder, res.CallID)
					fixed = append(fixed, res)
				}
			}
			if len(fixed) == 0 {
				continue
			}
			copied := *msg
			copied.ToolResults = fixed
			repaired = append(repaired, &copied)
		default:
			repaired = append(repaired, msg)
		}
	}

	return repaired
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			copy(ids[i:], ids[i+1:])
			return ids[:len(ids)-1]
		}
	}
	return ids
}
