package agent

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/haasonsaas/opsassist/pkg/models"
)

// repairTranscript makes replayed history safe to send to a provider: every
// assistant call batch is followed by exactly one tool turn answering each
// call in order. Calls without an id get one, missing results are
// synthesized as errors and results that answer nothing are dropped.
func repairTranscript(history []models.Turn) []models.Turn {
	if len(history) == 0 {
		return history
	}

	repaired := make([]models.Turn, 0, len(history)+1)
	var pending []models.OperationCall
	answered := make(map[string]models.OperationResult)

	flush := func() {
		if pending == nil {
			return
		}
		results := make([]models.OperationResult, len(pending))
		for i, call := range pending {
			if res, ok := answered[call.CallID]; ok {
				results[i] = res
				continue
			}
			results[i] = danglingResult(call.CallID)
		}
		repaired = append(repaired, models.ToolTurn(results))
		pending = nil
		clear(answered)
	}

	for _, turn := range history {
		switch turn.Role {
		case models.RoleAssistant:
			flush()
			if len(turn.Calls) == 0 {
				repaired = append(repaired, turn)
				continue
			}
			calls := make([]models.OperationCall, len(turn.Calls))
			for i, call := range turn.Calls {
				if call.CallID == "" {
					call.CallID = uuid.NewString()
				}
				calls[i] = call
			}
			pending = calls
			repaired = append(repaired, models.AssistantCalls(calls))
		case models.RoleTool:
			if pending == nil {
				continue
			}
			for _, res := range turn.Results {
				if res.CallID == "" {
					res.CallID = firstUnanswered(pending, answered)
				}
				if res.CallID == "" || !hasCall(pending, res.CallID) {
					continue
				}
				if _, dup := answered[res.CallID]; dup {
					continue
				}
				answered[res.CallID] = res
			}
		default:
			flush()
			repaired = append(repaired, turn)
		}
	}
	flush()

	return repaired
}

func danglingResult(callID string) models.OperationResult {
	payload, _ := json.Marshal(errorPayload{
		Message: "이전 대화에서 결과를 받지 못한 작업입니다",
		Error:   "missing operation result",
	})
	return models.OperationResult{CallID: callID, Payload: payload, IsError: true}
}

func firstUnanswered(calls []models.OperationCall, answered map[string]models.OperationResult) string {
	for _, call := range calls {
		if _, ok := answered[call.CallID]; !ok {
			return call.CallID
		}
	}
	return ""
}

func hasCall(calls []models.OperationCall, id string) bool {
	for _, call := range calls {
		if call.CallID == id {
			return true
		}
	}
	return false
}
