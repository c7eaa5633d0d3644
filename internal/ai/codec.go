package ai

import (
	"encoding/json"
	"fmt"
)

func decodeConfig(args interface{}, dst interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode provider args: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode provider args: %w", err)
	}
	return nil
}
