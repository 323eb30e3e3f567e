package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// HandoffPrefix is the naming convention for generated handoff tools.
const HandoffPrefix = "transfer_to_"

// Handoff builds a tool whose result transfers the conversation to the
// target agent. The distinguishing contract is the Result's HandoffTo field;
// the Output mirrors it as JSON so the model sees who took over.
func Handoff(targetID, targetName string) Definition {
	payload, _ := json.Marshal(map[string]string{"assistant": targetName})

	return Definition{
		Name:        HandoffPrefix + targetID,
		Description: fmt.Sprintf("Transfer the conversation to the %s agent.", targetName),
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			return Result{
				Output:    string(payload),
				HandoffTo: targetID,
			}, nil
		},
	}
}
