package gitstore

import (
	"errors"
	"testing"

	"github.com/shurlinet/radnode/internal/codec"
)

func TestWriteReadOid_Roundtrip(t *testing.T) {
	var oid Oid
	for i := range oid {
		oid[i] = byte(i)
	}
	w := codec.NewWriter()
	WriteOid(w, oid)

	r := codec.NewReader(w.Bytes())
	got, err := ReadOid(r)
	if err != nil {
		t.Fatalf("ReadOid() error = %v", err)
	}
	if got != oid {
		t.Fatalf("ReadOid() = %v, want %v", got, oid)
	}
}

func TestReadOid_WrongLength(t *testing.T) {
	w := codec.NewWriter()
	w.WriteBytes(make([]byte, 19))
	r := codec.NewReader(w.Bytes())
	if _, err := ReadOid(r); !errors.Is(err, ErrInvalidOidLength) {
		t.Fatalf("ReadOid() error = %v, want ErrInvalidOidLength", err)
	}
}
