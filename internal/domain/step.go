package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ArgumentTypeSubsearch marks an argument whose value is a nested pipeline.
const ArgumentTypeSubsearch = "subsearch"

// Step is the serialized form of one pipeline step as produced by the query
// translator.
type Step struct {
	Name      string                `json:"name"`
	Arguments map[string][]Argument `json:"arguments,omitempty"`
}

// Argument is one binding of a named argument. Subsearch arguments carry
// their nested steps in Subsearch; on the wire they travel in "value".
type Argument struct {
	Key       string   `json:"key,omitempty"`
	Type      string   `json:"type,omitempty"`
	Value     any      `json:"value"`
	NamedAs   string   `json:"named_as,omitempty"`
	GroupBy   []string `json:"group_by,omitempty"`
	ArgType   string   `json:"arg_type,omitempty"`
	Subsearch []Step   `json:"-"`
}

type argumentFields Argument

// UnmarshalJSON decodes scalar values with json.Number and subsearch values
// as step lists.
func (a *Argument) UnmarshalJSON(b []byte) error {
	var raw struct {
		argumentFields
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = Argument(raw.argumentFields)
	a.Value = nil
	if len(raw.Value) == 0 || bytes.Equal(raw.Value, []byte("null")) {
		return nil
	}
	if a.Type == ArgumentTypeSubsearch {
		if err := json.Unmarshal(raw.Value, &a.Subsearch); err != nil {
			return fmt.Errorf("decode subsearch: %w", err)
		}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw.Value))
	dec.UseNumber()
	return dec.Decode(&a.Value)
}

// MarshalJSON writes subsearch steps into "value".
func (a Argument) MarshalJSON() ([]byte, error) {
	out := struct {
		argumentFields
		Value any `json:"value"`
	}{argumentFields: argumentFields(a), Value: a.Value}
	if a.Type == ArgumentTypeSubsearch {
		out.Value = a.Subsearch
	}
	return json.Marshal(out)
}
