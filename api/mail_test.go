package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestMailerComposeWelcome(t *testing.T) {
	m, err := newMailer(smtpConfig{host: "localhost", port: 2525, sender: "Todo Tracker <no-reply@example.com>"})
	if err != nil {
		t.Fatalf("newMailer failed: %v", err)
	}

	u := &user{ID: 1, Username: "alice", Email: "alice@example.com", Role: roleUser, PasswordHash: []byte("secret-hash")}
	msg, err := m.compose(u.Email, m.welcome, u.public())
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("unexpected To header %v", got)
	}
	if got := msg.GetHeader("Subject"); len(got) != 1 || !strings.Contains(got[0], "alice") {
		t.Errorf("unexpected Subject header %v", got)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"text/plain", "text/html", "alice@example.com"} {
		if !strings.Contains(raw, want) {
			t.Errorf("Expected message to contain %q", want)
		}
	}
	if strings.Contains(raw, "secret-hash") {
		t.Error("welcome email leaked the password hash")
	}
}
