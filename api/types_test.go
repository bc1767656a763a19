package api

import (
	"encoding/json"
	"testing"
)

func TestStatusCodeString(t *testing.T) {
	cases := []struct {
		code StatusCode
		want string
	}{
		{StatusSuccess, "success"},
		{StatusError, "error"},
		{StatusContextExceeded, "context exceeded"},
		{StatusCode(7), "unknown"},
	}

	for _, tt := range cases {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestMessageUnmarshalLowercasesRole(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role": "USER", "content": "hallo"}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.Role != "user" {
		t.Errorf("Role = %q, want %q", m.Role, "user")
	}
}

func TestEnvelopeModalParts(t *testing.T) {
	var env DialogEnvelope
	data := []byte(`{"id": "local-chatcmpl-1", "messages": [], "modal_prts": [{"4096": 128}]}`)
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}

	if len(env.ModalParts) != 1 {
		t.Fatalf("ModalParts = %d, want 1", len(env.ModalParts))
	}
	if env.ModalParts[0]["4096"] != 128 {
		t.Errorf("length = %d, want 128", env.ModalParts[0]["4096"])
	}
}
