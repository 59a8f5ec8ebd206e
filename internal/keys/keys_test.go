package keys

import (
	"encoding/json"
	"testing"
)

func TestSignVerify(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	digest := []byte("hello")
	sig := kp.Sign(digest)
	if !Verify(kp.Public, digest, sig) {
		t.Fatalf("signature did not verify under signer's own key")
	}
	other, _ := Generate()
	if Verify(other.Public, digest, sig) {
		t.Fatalf("signature verified under an unrelated key")
	}
}

func TestFromSeedDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	a, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	b, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	if a.Public != b.Public {
		t.Fatalf("same seed produced different public keys")
	}
}

func TestPublicKeyBytesJSONRoundTrip(t *testing.T) {
	kp, _ := Generate()
	type holder struct {
		Key   PublicKeyBytes         `json:"key"`
		ByKey map[PublicKeyBytes]int `json:"by_key"`
	}
	h := holder{Key: kp.Public, ByKey: map[PublicKeyBytes]int{kp.Public: 1}}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got holder
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Key != kp.Public {
		t.Fatalf("key round-trip mismatch")
	}
	if got.ByKey[kp.Public] != 1 {
		t.Fatalf("map-key round-trip mismatch")
	}
}

func TestDerivePeerIDStable(t *testing.T) {
	kp, _ := Generate()
	if DerivePeerID(kp.Public) != DerivePeerID(kp.Public) {
		t.Fatalf("peer id derivation is not a pure function of the key")
	}
}
