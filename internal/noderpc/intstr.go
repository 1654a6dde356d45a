package noderpc

import (
	"encoding/json"
	"strconv"
)

// IntStr unmarshals a JSON value that the node may encode as either a
// decimal string or a number, e.g. tx value ("500" or 500) and
// wallet_status totals (*_str fields).
type IntStr int64

func (i *IntStr) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*i = IntStr(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*i = IntStr(n)
	return nil
}

func (i IntStr) Int64() int64 { return int64(i) }
