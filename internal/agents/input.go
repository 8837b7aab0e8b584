package agents

import (
	"encoding/json"

	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/domain/plan"
)

// lastInput extracts the structured request from the most recent message.
// Routing input arrives as JSON, often wrapped in model prose; anything that
// does not contain a JSON object decodes to nil and callers fall back to
// their defaults.
func lastInput(msgs []conversation.Message) map[string]any {
	if len(msgs) == 0 {
		return nil
	}
	body, ok := plan.ExtractObject(msgs[len(msgs)-1].Content)
	if !ok {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil
	}
	return obj
}

// decodeInto remarshals a generic object into a typed request.
func decodeInto(obj map[string]any, dst any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func inputString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
