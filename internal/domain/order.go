package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ID accepts both numeric and string identifiers from the backend.
type ID string

func (o *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*o = ID(strings.TrimSpace(n.String()))
	return nil
}

type OrderLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type Order struct {
	ID      ID     `json:"id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}
