package ecorelease

import (
	"encoding/json"
	"fmt"

	"ecorelease/storage"
)

// StateView is a human-readable projection of State for operators.
type StateView struct {
	Region            string `json:"region"`
	Beneficiary       string `json:"beneficiary"`
	Owner             string `json:"owner"`
	Oracle            string `json:"oracle"`
	Ecostate          int64  `json:"ecostate"`
	TotalTokens       int64  `json:"total_tokens"`
	ReleasedTokens    int64  `json:"released_tokens"`
	PayoutStartHeight *int64 `json:"payout_start_height"`
	PayoutEndHeight   *int64 `json:"payout_end_height"`
	IsLocked          bool   `json:"is_locked"`
	Done              bool   `json:"done"`
}

// Query answers a read-only request with a JSON payload. The store is never
// written.
func (e *Engine) Query(store storage.Reader, msg QueryMsg) ([]byte, error) {
	state, err := LoadState(store)
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case StateQuery:
		return json.Marshal(state)
	case BalanceQuery:
		addr, err := e.canonical("balance", m.Address)
		if err != nil {
			return nil, err
		}
		balance, err := ReadBalance(store, addr)
		if err != nil {
			return nil, err
		}
		return json.Marshal(BalanceResponse{Balance: balance.Dec()})
	default:
		return nil, &Error{Kind: KindValidation, Msg: ErrUnknownMessage.Msg, Err: fmt.Errorf("%T", msg)}
	}
}

// View loads the state and renders its addresses in human-readable form.
func (e *Engine) View(store storage.Reader) (*StateView, error) {
	state, err := LoadState(store)
	if err != nil {
		return nil, err
	}
	view := &StateView{
		Region:            state.Region,
		Ecostate:          state.Ecostate,
		TotalTokens:       state.TotalTokens,
		ReleasedTokens:    state.ReleasedTokens,
		PayoutStartHeight: state.PayoutStartHeight,
		PayoutEndHeight:   state.PayoutEndHeight,
		IsLocked:          state.IsLocked,
		Done:              state.IsDone(),
	}
	for _, f := range []struct {
		dst *string
		src []byte
	}{
		{&view.Beneficiary, state.Beneficiary},
		{&view.Owner, state.Owner},
		{&view.Oracle, state.Oracle},
	} {
		if *f.dst, err = e.human(f.src); err != nil {
			return nil, err
		}
	}
	return view, nil
}
