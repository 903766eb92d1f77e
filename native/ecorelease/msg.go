package ecorelease

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// InitMsg instantiates the contract.
type InitMsg struct {
	Region            string `json:"region" yaml:"region"`
	Beneficiary       string `json:"beneficiary" yaml:"beneficiary"`
	Oracle            string `json:"oracle" yaml:"oracle"`
	Ecostate          int64  `json:"ecostate" yaml:"ecostate"`
	TotalTokens       int64  `json:"total_tokens" yaml:"total_tokens"`
	PayoutStartHeight *int64 `json:"payout_start_height,omitempty" yaml:"payout_start_height,omitempty"`
	PayoutEndHeight   *int64 `json:"payout_end_height,omitempty" yaml:"payout_end_height,omitempty"`
}

// HandleMsg is the closed set of state-changing operations. Implementations
// live in this package only.
type HandleMsg interface {
	handleTag() string
}

type UpdateEcostate struct {
	Ecostate int64 `json:"ecostate"`
}

type Lock struct{}

type Unlock struct{}

type ChangeBeneficiary struct {
	Beneficiary string `json:"beneficiary"`
}

type ChangeOracle struct {
	Oracle string `json:"oracle"`
}

type TransferOwnership struct {
	Owner string `json:"owner"`
}

func (UpdateEcostate) handleTag() string    { return "updateecostate" }
func (Lock) handleTag() string              { return "lock" }
func (Unlock) handleTag() string            { return "unlock" }
func (ChangeBeneficiary) handleTag() string { return "changebeneficiary" }
func (ChangeOracle) handleTag() string      { return "changeoracle" }
func (TransferOwnership) handleTag() string { return "transferownership" }

// HandleTag returns the wire tag of msg.
func HandleTag(msg HandleMsg) string {
	if msg == nil {
		return ""
	}
	return msg.handleTag()
}

// QueryMsg is the closed set of read-only requests.
type QueryMsg interface {
	queryTag() string
}

type StateQuery struct{}

type BalanceQuery struct {
	Address string `json:"address"`
}

func (StateQuery) queryTag() string   { return "state" }
func (BalanceQuery) queryTag() string { return "balance" }

// QueryTag returns the wire tag of msg.
func QueryTag(msg QueryMsg) string {
	if msg == nil {
		return ""
	}
	return msg.queryTag()
}

// BalanceResponse renders a ledger balance as a decimal string.
type BalanceResponse struct {
	Balance string `json:"balance"`
}

// DecodeInitMsg parses an init payload, rejecting unknown fields.
func DecodeInitMsg(data []byte) (InitMsg, error) {
	var msg InitMsg
	if err := strictUnmarshal(data, &msg); err != nil {
		return InitMsg{}, invalid("decode init message", err)
	}
	if err := requireFields(data, msg.requiredFields()...); err != nil {
		return InitMsg{}, invalid("decode init message", err)
	}
	return msg, nil
}

// DecodeHandleMsg parses the externally tagged union
// {"<tag>": {...fields}}.
func DecodeHandleMsg(data []byte) (HandleMsg, error) {
	tag, body, err := splitTagged(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "updateecostate":
		return decodeVariant[UpdateEcostate](tag, body)
	case "lock":
		return decodeVariant[Lock](tag, body)
	case "unlock":
		return decodeVariant[Unlock](tag, body)
	case "changebeneficiary":
		return decodeVariant[ChangeBeneficiary](tag, body)
	case "changeoracle":
		return decodeVariant[ChangeOracle](tag, body)
	case "transferownership":
		return decodeVariant[TransferOwnership](tag, body)
	default:
		return nil, &Error{Kind: KindValidation, Msg: ErrUnknownMessage.Msg, Err: fmt.Errorf("handle tag %q", tag)}
	}
}

func decodeVariant[T HandleMsg](tag string, body []byte) (HandleMsg, error) {
	var m T
	if err := decodeBody(body, &m); err != nil {
		return nil, invalid("decode "+tag, err)
	}
	return m, nil
}

// DecodeQueryMsg parses {"state":{}} or {"balance":{"address":"..."}}.
func DecodeQueryMsg(data []byte) (QueryMsg, error) {
	tag, body, err := splitTagged(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "state":
		var m StateQuery
		if err := decodeBody(body, &m); err != nil {
			return nil, invalid("decode state", err)
		}
		return m, nil
	case "balance":
		var m BalanceQuery
		if err := decodeBody(body, &m); err != nil {
			return nil, invalid("decode balance", err)
		}
		return m, nil
	default:
		return nil, &Error{Kind: KindValidation, Msg: ErrUnknownMessage.Msg, Err: fmt.Errorf("query tag %q", tag)}
	}
}

// EncodeHandleMsg renders msg in its tagged wire form.
func EncodeHandleMsg(msg HandleMsg) ([]byte, error) {
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	return json.Marshal(map[string]any{msg.handleTag(): msg})
}

// EncodeQueryMsg renders msg in its tagged wire form.
func EncodeQueryMsg(msg QueryMsg) ([]byte, error) {
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	return json.Marshal(map[string]any{msg.queryTag(): msg})
}

func splitTagged(data []byte) (string, json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, invalid("decode message", err)
	}
	if len(envelope) != 1 {
		return "", nil, invalid("decode message", fmt.Errorf("expected exactly one variant, got %d", len(envelope)))
	}
	for tag, body := range envelope {
		return tag, body, nil
	}
	return "", nil, ErrUnknownMessage
}

// fieldSet is implemented by message bodies with mandatory keys.
type fieldSet interface {
	requiredFields() []string
}

func (InitMsg) requiredFields() []string {
	return []string{"region", "beneficiary", "oracle", "ecostate", "total_tokens"}
}

func (UpdateEcostate) requiredFields() []string    { return []string{"ecostate"} }
func (ChangeBeneficiary) requiredFields() []string { return []string{"beneficiary"} }
func (ChangeOracle) requiredFields() []string      { return []string{"oracle"} }
func (TransferOwnership) requiredFields() []string { return []string{"owner"} }
func (BalanceQuery) requiredFields() []string      { return []string{"address"} }

func decodeBody(body []byte, v any) error {
	if err := strictUnmarshal(body, v); err != nil {
		return err
	}
	if fs, ok := v.(fieldSet); ok {
		return requireFields(body, fs.requiredFields()...)
	}
	return nil
}

// requireFields fails when any of keys is absent or null in the JSON object.
func requireFields(data []byte, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return err
	}
	for _, key := range keys {
		raw, ok := present[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("missing field %q", key)
		}
	}
	return nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
