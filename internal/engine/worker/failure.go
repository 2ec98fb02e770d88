package worker

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.trai.ch/kernelproxy/internal/core/domain"
)

// failurePrefix marks every error reply.
const failurePrefix = "kernelproxy: operation failed"

// FailureMessage composes the error reply text: the error, the operation name
// and every input rendered as JSON, keys in lexical order.
func FailureMessage(err error, action domain.Action) string {
	keys := make([]string, 0, len(action.Inputs))
	for k := range action.Inputs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + render(action.Inputs[k])
	}

	return fmt.Sprintf("%s: %v. Operation: %s. Inputs: %s",
		failurePrefix, err, action.FunctionName, strings.Join(parts, ", "))
}

func render(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
