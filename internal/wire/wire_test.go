package wire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"
)

func mustEncode(t *testing.T, r Record) []byte {
	t.Helper()
	b, err := EncodeRecord(r)
	if err != nil {
		t.Fatalf("EncodeRecord error: %v", err)
	}
	return b
}

func mustDecode(t *testing.T, b []byte) Record {
	t.Helper()
	r, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("DecodeRecord error: %v", err)
	}
	return r
}

func TestRecordRoundTrip(t *testing.T) {
	exp := time.Unix(1700000000, 123)
	cases := []Record{
		{Key: "k", Payload: nil},
		{Key: "user", Payload: []byte("hello"), Expiry: exp},
		{Key: "tagged", Payload: []byte{0, 1, 2}, Tags: []string{"a", "bb", "ccc"}},
	}
	for _, tc := range cases {
		got := mustDecode(t, mustEncode(t, tc))
		if got.Key != tc.Key {
			t.Fatalf("key mismatch: got %q want %q", got.Key, tc.Key)
		}
		if !got.Expiry.Equal(tc.Expiry) {
			t.Fatalf("expiry mismatch: got %v want %v", got.Expiry, tc.Expiry)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
		if strings.Join(got.Tags, ",") != strings.Join(tc.Tags, ",") {
			t.Fatalf("tags mismatch: got %v want %v", got.Tags, tc.Tags)
		}
	}
}

func TestRecordZeroExpiryStaysZero(t *testing.T) {
	got := mustDecode(t, mustEncode(t, Record{Key: "k", Payload: []byte("v")}))
	if !got.Expiry.IsZero() {
		t.Fatalf("expected zero expiry, got %v", got.Expiry)
	}
}

func TestRecordRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, Record{Key: "k", Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := DecodeRecord(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestRecordCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, Record{Key: "k", Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := DecodeRecord(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := DecodeRecord(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindRecord + 1
	if _, err := DecodeRecord(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// header 14 bytes, then klen(2) at 14..15
	badKlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badKlen[14:16], 500)
	if _, err := DecodeRecord(badKlen); err == nil {
		t.Fatalf("expected error on klen beyond buffer")
	}

	// vlen sits after: 14 hdr + 2 klen + 1 key + 2 ntags = 19
	badVlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badVlen[19:23], uint32(len("abc")+1))
	if _, err := DecodeRecord(badVlen); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := DecodeRecord(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
}

func TestRecordBogusTagCountNotPrealloc(t *testing.T) {
	enc := mustEncode(t, Record{Key: "k", Payload: []byte("v")})
	bogus := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(bogus[17:19], 0xFFFF)
	if _, err := DecodeRecord(bogus); err == nil {
		t.Fatalf("expected error on bogus tag count")
	}
}

func TestRecordKeyAndTagLengthValidation(t *testing.T) {
	if _, err := EncodeRecord(Record{Key: ""}); err != ErrKeyLength {
		t.Fatalf("expected ErrKeyLength on empty key, got %v", err)
	}
	if _, err := EncodeRecord(Record{Key: strings.Repeat("a", 0x10000)}); err != ErrKeyLength {
		t.Fatalf("expected ErrKeyLength on oversized key, got %v", err)
	}
	if _, err := EncodeRecord(Record{Key: strings.Repeat("b", 0xFFFF)}); err != nil {
		t.Fatalf("boundary key length should succeed: %v", err)
	}
	if _, err := EncodeRecord(Record{Key: "k", Tags: []string{""}}); err != ErrTagLength {
		t.Fatalf("expected ErrTagLength on empty tag, got %v", err)
	}
}

func TestRecordZeroCopyPayload(t *testing.T) {
	enc := mustEncode(t, Record{Key: "k", Payload: []byte("Z")})
	r := mustDecode(t, enc)
	r.Payload[0] = 'Q'
	if mustDecode(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy payload slice into enc buffer")
	}
}
