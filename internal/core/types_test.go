package core

import "testing"

func TestHeaders_MultimapOrder(t *testing.T) {
	var h Headers
	h.Add("Set-Cookie", "a=1")
	h.Add("Content-Type", "text/plain")
	h.Add("set-cookie", "b=2")

	if got := h.Get("content-type"); got != "text/plain" {
		t.Errorf("Get = %q, want text/plain", got)
	}
	vals := h.Values("SET-COOKIE")
	if len(vals) != 2 || vals[0] != "a=1" || vals[1] != "b=2" {
		t.Errorf("Values = %v, want [a=1 b=2]", vals)
	}

	rest := h.Del("set-cookie")
	if len(rest) != 1 || rest[0].Name != "Content-Type" {
		t.Errorf("Del left %v", rest)
	}
	if len(h) != 3 {
		t.Errorf("Del mutated receiver: len = %d", len(h))
	}
}

func TestHeaders_PairsRoundTripPreservesDuplicates(t *testing.T) {
	h := Headers{{"X-A", "1"}, {"X-A", "2"}}
	back := HeadersFromPairs(h.Pairs())
	if len(back) != 2 || back[1].Value != "2" {
		t.Errorf("pairs round trip = %v", back)
	}
}

func TestSecretMap_CloneIsIndependent(t *testing.T) {
	orig := SecretMap{"API_KEY": "s3cret"}
	c := orig.Clone()
	c["API_KEY"] = "changed"
	c["NEW"] = "x"
	if orig["API_KEY"] != "s3cret" || len(orig) != 1 {
		t.Errorf("clone shares storage with original: %v", orig)
	}
	var nilMap SecretMap
	if got := nilMap.Clone(); got == nil {
		t.Error("nil clone should be an empty map")
	}
}

func TestFailure_DefaultsStatus(t *testing.T) {
	r := Failure("boom", 0)
	if r.Status != 500 || !r.IsFailure() {
		t.Errorf("Failure = %+v", r)
	}
	if Thrown(418, nil, nil).Kind.String() != "thrown_response" {
		t.Error("unexpected kind string")
	}
}

func TestFunctionDefinition_Active(t *testing.T) {
	var nilDef *FunctionDefinition
	if nilDef.Active() {
		t.Error("nil definition should not be active")
	}
	if (&FunctionDefinition{Status: StatusDraft}).Active() {
		t.Error("draft should not be active")
	}
	if !(&FunctionDefinition{Status: StatusActive}).Active() {
		t.Error("active definition reported inactive")
	}
}
