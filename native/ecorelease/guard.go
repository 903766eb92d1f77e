package ecorelease

import "bytes"

// isOwner is the single authorization predicate shared by every
// administrative operation.
func isOwner(state *State, signer []byte) bool {
	return state != nil && len(signer) > 0 && bytes.Equal(signer, state.Owner)
}

func isOracle(state *State, signer []byte) bool {
	return state != nil && len(signer) > 0 && bytes.Equal(signer, state.Oracle)
}

func requireOwner(state *State, signer []byte) error {
	if !isOwner(state, signer) {
		return ErrUnauthorized
	}
	return nil
}
