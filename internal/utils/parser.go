package utils

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// DecodeJSON unmarshals a datatypes.JSON column into the given struct
func DecodeJSON(jsonData datatypes.JSON, out interface{}) error {
	if len(jsonData) == 0 {
		return nil
	}
	return json.Unmarshal(jsonData, out)
}

// EncodeJSON marshals a struct into a datatypes.JSON column value
func EncodeJSON(data interface{}) (datatypes.JSON, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return jsonData, nil
}
