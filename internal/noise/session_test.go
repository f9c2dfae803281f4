package noise

import (
	"bytes"
	"errors"
	"testing"
)

func handshakePair(t *testing.T) (*Session, *Session) {
	t.Helper()
	initKP, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	respKP, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	initSess, err := NewInitiator(initKP, respKP.Public())
	if err != nil {
		t.Fatal(err)
	}
	respSess, err := NewResponder(respKP)
	if err != nil {
		t.Fatal(err)
	}

	msg1, err := initSess.Start()
	if err != nil {
		t.Fatal(err)
	}
	if _, done, err := respSess.Step(msg1); err != nil || done {
		t.Fatalf("responder Step(msg1) done=%v err=%v", done, err)
	}
	msg2, err := respSess.StepWrite()
	if err != nil {
		t.Fatal(err)
	}
	msg3, done, err := initSess.Step(msg2)
	if err != nil || !done {
		t.Fatalf("initiator Step(msg2) done=%v err=%v", done, err)
	}
	if err := respSess.FinishResponder(msg3); err != nil {
		t.Fatal(err)
	}
	return initSess, respSess
}

func TestHandshake_EstablishesAndRevealsKeys(t *testing.T) {
	initSess, respSess := handshakePair(t)
	if initSess.Status() != StateEstablished || respSess.Status() != StateEstablished {
		t.Fatal("both sessions should be established")
	}
	if len(respSess.RemoteStatic()) == 0 {
		t.Fatal("responder should learn the initiator's static key")
	}
}

func TestHandshake_RejectsWrongExpectedStatic(t *testing.T) {
	initKP, _ := GenerateKeypair()
	respKP, _ := GenerateKeypair()
	wrongKP, _ := GenerateKeypair()

	initSess, err := NewInitiator(initKP, wrongKP.Public())
	if err != nil {
		t.Fatal(err)
	}
	respSess, err := NewResponder(respKP)
	if err != nil {
		t.Fatal(err)
	}
	msg1, err := initSess.Start()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := respSess.Step(msg1); err != nil {
		t.Fatal(err)
	}
	msg2, err := respSess.StepWrite()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := initSess.Step(msg2); !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("initiator Step(msg2) error = %v, want ErrHandshakeFailed", err)
	}
}

// halfAcceptWriter accepts only half of whatever is written to it per
// call, simulating a non-blocking socket under backpressure, for property
// 9 (write atomicity).
type halfAcceptWriter struct {
	accepted []byte
}

func (w *halfAcceptWriter) Write(p []byte) (int, error) {
	n := (len(p) + 1) / 2
	if n == 0 && len(p) > 0 {
		n = 1
	}
	w.accepted = append(w.accepted, p[:n]...)
	return n, nil
}

// TestWriteAtomicity is property 9: a transport that accepts only half a
// buffer per call must still see WriteAtomic's full frame delivered,
// eventually, with no partial frame surfaced as "sent" before Flush
// reports zero bytes remaining.
func TestWriteAtomicity(t *testing.T) {
	initSess, respSess := handshakePair(t)
	_ = respSess
	plaintext := bytes.Repeat([]byte("frame"), 100)

	if !initSess.IsReadyToWrite() {
		t.Fatal("fresh session should be ready to write")
	}
	if err := initSess.WriteAtomic(plaintext); err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}
	if initSess.IsReadyToWrite() {
		t.Fatal("session should not be ready to write again until flushed")
	}

	w := &halfAcceptWriter{}
	for !initSess.IsReadyToWrite() {
		if _, err := initSess.Flush(w); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
	}

	pt, err := respSess.Decrypt(w.accepted)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatal("decrypted plaintext does not match what was written")
	}
}

func TestWriteAtomic_RejectsWhileNotEstablished(t *testing.T) {
	kp, _ := GenerateKeypair()
	s, err := NewResponder(kp)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteAtomic([]byte("x")); !errors.Is(err, ErrNotEstablished) {
		t.Fatalf("WriteAtomic() error = %v, want ErrNotEstablished", err)
	}
}
