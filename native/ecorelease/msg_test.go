package ecorelease

import (
	"errors"
	"testing"
)

func TestDecodeHandleMsg(t *testing.T) {
	cases := map[string]HandleMsg{
		`{"updateecostate":{"ecostate":5050}}`: UpdateEcostate{Ecostate: 5050},
		`{"lock":{}}`:                          Lock{},
		`{"unlock":{}}`:                        Unlock{},
		`{"changebeneficiary":{"beneficiary":"eco1abc"}}`: ChangeBeneficiary{Beneficiary: "eco1abc"},
		`{"changeoracle":{"oracle":"eco1abc"}}`:           ChangeOracle{Oracle: "eco1abc"},
		`{"transferownership":{"owner":"eco1abc"}}`:       TransferOwnership{Owner: "eco1abc"},
	}
	for raw, want := range cases {
		got, err := DecodeHandleMsg([]byte(raw))
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%s: got %#v, want %#v", raw, got, want)
		}
		encoded, err := EncodeHandleMsg(got)
		if err != nil {
			t.Fatalf("encode %s: %v", raw, err)
		}
		again, err := DecodeHandleMsg(encoded)
		if err != nil || again != want {
			t.Fatalf("re-decode %s: %#v %v", encoded, again, err)
		}
	}
}

func TestDecodeHandleMsgRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`{"UpdateEcostate":{"ecostate":1}}`,
		`{"mint":{}}`,
		`{"lock":{},"unlock":{}}`,
		`{}`,
		`{"updateecostate":{"ecostate":"many"}}`,
		`{"lock":{"force":true}}`,
		`not json`,
		`{"updateecostate":{}}`,
		`{"updateecostate":{"ecostate":null}}`,
		`{"updateecostate":null}`,
		`{"changebeneficiary":{}}`,
		`{"changeoracle":{}}`,
		`{"transferownership":{}}`,
	} {
		_, err := DecodeHandleMsg([]byte(raw))
		if err == nil {
			t.Fatalf("%s: expected error", raw)
		}
		if KindOf(err) != KindValidation {
			t.Fatalf("%s: expected validation kind, got %v", raw, err)
		}
	}
}

func TestDecodeQueryMsg(t *testing.T) {
	msg, err := DecodeQueryMsg([]byte(`{"state":{}}`))
	if err != nil || msg != (StateQuery{}) {
		t.Fatalf("state: %#v %v", msg, err)
	}
	msg, err = DecodeQueryMsg([]byte(`{"balance":{"address":"eco1xyz"}}`))
	if err != nil || msg != (BalanceQuery{Address: "eco1xyz"}) {
		t.Fatalf("balance: %#v %v", msg, err)
	}
	if _, err := DecodeQueryMsg([]byte(`{"config":{}}`)); !errors.As(err, new(*Error)) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if _, err := DecodeQueryMsg([]byte(`{"balance":{}}`)); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for balance without address, got %v", err)
	}
}

func TestDecodeInitMsg(t *testing.T) {
	msg, err := DecodeInitMsg([]byte(`{"region":"r","beneficiary":"b","oracle":"o","ecostate":1,"total_tokens":2,"payout_start_height":3}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.PayoutStartHeight == nil || *msg.PayoutStartHeight != 3 || msg.PayoutEndHeight != nil {
		t.Fatalf("unexpected heights: %+v", msg)
	}
	if _, err := DecodeInitMsg([]byte(`{"region":"r","owner":"x"}`)); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}

	for _, raw := range []string{
		`{"region":"r","beneficiary":"b","oracle":"o","total_tokens":2}`,
		`{"region":"r","beneficiary":"b","oracle":"o","ecostate":1}`,
		`{"beneficiary":"b","oracle":"o","ecostate":1,"total_tokens":2}`,
		`{"region":"r","oracle":"o","ecostate":1,"total_tokens":2}`,
		`{"region":"r","beneficiary":"b","ecostate":1,"total_tokens":2}`,
	} {
		if _, err := DecodeInitMsg([]byte(raw)); KindOf(err) != KindValidation {
			t.Fatalf("%s: expected validation error for missing field, got %v", raw, err)
		}
	}
}
