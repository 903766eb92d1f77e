package ecorelease

import "strconv"

// State is the singleton contract record persisted under the "config" key.
type State struct {
	Region            string `json:"region"`
	Beneficiary       []byte `json:"beneficiary"`
	Owner             []byte `json:"owner"`
	Oracle            []byte `json:"oracle"`
	Ecostate          int64  `json:"ecostate"`
	TotalTokens       int64  `json:"total_tokens"`
	ReleasedTokens    int64  `json:"released_tokens"`
	PayoutStartHeight *int64 `json:"payout_start_height"`
	PayoutEndHeight   *int64 `json:"payout_end_height"`
	IsLocked          bool   `json:"is_locked"`
}

// Clone returns a deep copy so handlers can mutate the copy and only persist
// it once every check has passed.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Beneficiary = append([]byte(nil), s.Beneficiary...)
	clone.Owner = append([]byte(nil), s.Owner...)
	clone.Oracle = append([]byte(nil), s.Oracle...)
	if s.PayoutStartHeight != nil {
		v := *s.PayoutStartHeight
		clone.PayoutStartHeight = &v
	}
	if s.PayoutEndHeight != nil {
		v := *s.PayoutEndHeight
		clone.PayoutEndHeight = &v
	}
	return &clone
}

// IsStarted reports whether the payout window has opened at height. A window
// without a start height never opens.
func (s *State) IsStarted(height int64) bool {
	return s.PayoutStartHeight != nil && *s.PayoutStartHeight <= height
}

// IsExpired reports whether height is past the inclusive end of the window.
func (s *State) IsExpired(height int64) bool {
	return s.PayoutEndHeight != nil && height > *s.PayoutEndHeight
}

// IsDone reports whether the whole supply has been released.
func (s *State) IsDone() bool {
	return s.ReleasedTokens == s.TotalTokens
}

// Remaining returns the unreleased supply.
func (s *State) Remaining() int64 {
	return s.TotalTokens - s.ReleasedTokens
}

// Env is the per-invocation context supplied by the host.
type Env struct {
	Height int64
	// Signer is the canonical address of the already-authenticated caller.
	Signer []byte
}

// Attribute is a single key/value log entry.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func attr(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func attrInt(key string, value int64) Attribute {
	return Attribute{Key: key, Value: strconv.FormatInt(value, 10)}
}

// Response is the result of a successful init or handle call. The contract
// never emits sub-messages, so Messages is always empty.
type Response struct {
	Messages []any       `json:"messages"`
	Log      []Attribute `json:"log"`
	Data     []byte      `json:"data"`
}

func newResponse(log ...Attribute) *Response {
	if log == nil {
		log = []Attribute{}
	}
	return &Response{Messages: []any{}, Log: log}
}

// Action returns the value of the "action" attribute, if any.
func (r *Response) Action() string {
	if r == nil {
		return ""
	}
	for _, a := range r.Log {
		if a.Key == "action" {
			return a.Value
		}
	}
	return ""
}
