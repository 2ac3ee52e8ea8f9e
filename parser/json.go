package parser

import (
	"encoding/json"
)

// ParseJSON decodes a JSON object into a generic map.
func ParseJSON(body []byte) (map[string]interface{}, error) {
	var data map[string]interface{}

	err := json.Unmarshal(body, &data)
	if err != nil {
		return nil, err
	}

	return data, nil
}
