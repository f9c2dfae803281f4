package keystore

import (
	"path/filepath"
	"testing"
)

func TestCreateUnsealSignRoundTrip(t *testing.T) {
	ks, seedPhrase, err := Create("correct horse battery staple")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ks.IsSealed() {
		t.Fatalf("freshly created keystore should be unsealed")
	}

	id := ks.NodeId()
	msg := []byte("hello")
	sig := ks.Sign(msg)

	dir := t.TempDir()
	path := filepath.Join(dir, "keystore.json")
	if err := ks.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.IsSealed() {
		t.Fatalf("loaded keystore should start sealed")
	}
	if err := loaded.Unseal("wrong passphrase"); err != ErrInvalidPassphrase {
		t.Fatalf("got %v, want ErrInvalidPassphrase", err)
	}
	if err := loaded.Unseal("correct horse battery staple"); err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if loaded.NodeId() != id {
		t.Fatalf("reloaded NodeId differs from original")
	}

	recovered, err := RecoverFromSeed(seedPhrase, "new passphrase")
	if err != nil {
		t.Fatalf("RecoverFromSeed: %v", err)
	}
	if recovered.NodeId() != id {
		t.Fatalf("recovered NodeId differs from original")
	}
	if recovered.Sign(msg) != sig {
		t.Fatalf("recovered signature differs from original")
	}
}

func TestSealBlocksSign(t *testing.T) {
	ks, _, err := Create("passphrase")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ks.Seal()
	if !ks.IsSealed() {
		t.Fatalf("expected sealed after Seal")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected Sign to panic while sealed")
		}
	}()
	ks.Sign([]byte("x"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatalf("expected error loading missing file")
	}
}

func TestNoiseKeypairDerivedConsistently(t *testing.T) {
	ks, seedPhrase, err := Create("p")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	kp1 := ks.NoiseKeypair()

	recovered, err := RecoverFromSeed(seedPhrase, "p2")
	if err != nil {
		t.Fatalf("RecoverFromSeed: %v", err)
	}
	kp2 := recovered.NoiseKeypair()

	if string(kp1.Public()) != string(kp2.Public()) {
		t.Fatalf("noise public key not reproducible from seed phrase")
	}
}
