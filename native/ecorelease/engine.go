package ecorelease

import (
	"fmt"
	"strings"

	"ecorelease/storage"
)

// AddressCodec converts between human-readable and canonical addresses.
type AddressCodec interface {
	Canonicalize(human string) ([]byte, error)
	Humanize(canonical []byte) (string, error)
}

// Engine implements the release contract over an injected store. It keeps no
// state of its own; every call reads and writes through the store it is
// given, and the caller decides whether those writes are committed.
type Engine struct {
	api AddressCodec
}

// NewEngine creates an engine that resolves addresses through api.
func NewEngine(api AddressCodec) *Engine {
	return &Engine{api: api}
}

func (e *Engine) canonical(field, human string) ([]byte, error) {
	if e == nil || e.api == nil {
		return nil, fmt.Errorf("ecorelease: address codec not configured")
	}
	addr, err := e.api.Canonicalize(strings.TrimSpace(human))
	if err != nil {
		return nil, invalid("invalid "+field+" address", err)
	}
	return addr, nil
}

func (e *Engine) human(canonical []byte) (string, error) {
	if e == nil || e.api == nil {
		return "", fmt.Errorf("ecorelease: address codec not configured")
	}
	return e.api.Humanize(canonical)
}

// Init creates the contract state. The signer becomes the owner. Guarding
// against a second Init is the host's job.
func (e *Engine) Init(store storage.KVStore, env Env, msg InitMsg) (*Response, error) {
	beneficiary, err := e.canonical("beneficiary", msg.Beneficiary)
	if err != nil {
		return nil, err
	}
	oracle, err := e.canonical("oracle", msg.Oracle)
	if err != nil {
		return nil, err
	}
	if msg.TotalTokens < 0 {
		return nil, ErrNegativeSupply
	}
	state := &State{
		Region:            msg.Region,
		Beneficiary:       beneficiary,
		Owner:             append([]byte(nil), env.Signer...),
		Oracle:            oracle,
		Ecostate:          msg.Ecostate,
		TotalTokens:       msg.TotalTokens,
		ReleasedTokens:    0,
		PayoutStartHeight: msg.PayoutStartHeight,
		PayoutEndHeight:   msg.PayoutEndHeight,
		IsLocked:          false,
	}
	if state.IsExpired(env.Height) {
		return nil, ErrExpiredOnCreate
	}
	if err := SaveState(store, state); err != nil {
		return nil, err
	}
	return newResponse(), nil
}

// Handle dispatches a state-changing message.
func (e *Engine) Handle(store storage.KVStore, env Env, msg HandleMsg) (*Response, error) {
	state, err := LoadState(store)
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case UpdateEcostate:
		return e.updateEcostate(store, env, state, m.Ecostate)
	case Lock:
		return e.administer(store, env, "lock", func(s *State) error {
			s.IsLocked = true
			return nil
		})
	case Unlock:
		return e.administer(store, env, "unlock", func(s *State) error {
			s.IsLocked = false
			return nil
		})
	case ChangeBeneficiary:
		return e.changeAddress(store, env, "change_beneficiary", "beneficiary", m.Beneficiary, func(s *State, addr []byte) {
			s.Beneficiary = addr
		})
	case ChangeOracle:
		return e.changeAddress(store, env, "change_oracle", "oracle", m.Oracle, func(s *State, addr []byte) {
			s.Oracle = addr
		})
	case TransferOwnership:
		return e.changeAddress(store, env, "transfer_ownership", "owner", m.Owner, func(s *State, addr []byte) {
			s.Owner = addr
		})
	default:
		return nil, &Error{Kind: KindValidation, Msg: ErrUnknownMessage.Msg, Err: fmt.Errorf("%T", msg)}
	}
}

func (e *Engine) updateEcostate(store storage.KVStore, env Env, state *State, newEcostate int64) (*Response, error) {
	if err := CheckUpdatePreconditions(state, env); err != nil {
		return nil, err
	}
	oldEcostate := state.Ecostate
	change, release, err := ReleaseAmount(oldEcostate, newEcostate)
	if err != nil {
		return nil, err
	}
	release = ClampRelease(release, state.Remaining())

	if release > 0 {
		if _, err := NewLedger(store).Credit(state.Beneficiary, uint64(release)); err != nil {
			return nil, err
		}
	}

	if _, err := UpdateState(store, func(s *State) error {
		s.Ecostate = newEcostate
		s.ReleasedTokens += release
		return nil
	}); err != nil {
		return nil, err
	}

	return newResponse(
		attr("action", "update_ecostate"),
		attrInt("old_ecostate", oldEcostate),
		attrInt("new_ecostate", newEcostate),
		attrInt("change_ecostate", change),
		attrInt("release_tokens", release),
	), nil
}

// administer runs an owner-gated read-modify-write against the state.
func (e *Engine) administer(store storage.KVStore, env Env, action string, mutate func(*State) error, extra ...Attribute) (*Response, error) {
	if _, err := UpdateState(store, func(s *State) error {
		if err := requireOwner(s, env.Signer); err != nil {
			return err
		}
		return mutate(s)
	}); err != nil {
		return nil, err
	}
	return newResponse(append([]Attribute{attr("action", action)}, extra...)...), nil
}

func (e *Engine) changeAddress(store storage.KVStore, env Env, action, field, human string, set func(*State, []byte)) (*Response, error) {
	var display string
	resp, err := e.administer(store, env, action, func(s *State) error {
		addr, err := e.canonical(field, human)
		if err != nil {
			return err
		}
		if display, err = e.human(addr); err != nil {
			return invalid("invalid "+field+" address", err)
		}
		set(s, addr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.Log = append(resp.Log, attr(field, display))
	return resp, nil
}
