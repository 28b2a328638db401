package alert

import (
	"net"
	"testing"

	"github.com/wneessen/go-mail"

	"github.com/fruitsalade/dirsync/internal/config"
)

func TestNew_DisabledIsNop(t *testing.T) {
	n, err := New(config.MailConfig{Host: "localhost", Port: 25})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(Nop); !ok {
		t.Errorf("expected Nop, got %T", n)
	}
	n.Notify("subject", "ignored")
	Wait(n)
}

func TestMailer_Message(t *testing.T) {
	m, err := NewMailer(config.MailConfig{
		Host: "localhost",
		Port: 25,
		From: "dirsync@example.com",
		To:   config.Recipients{"ops@example.com", "admin@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := m.message("Upload failed", "disk full")
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if got := msg.GetTo(); len(got) != 2 {
		t.Errorf("expected 2 recipients, got %v", got)
	}
	if got := msg.GetGenHeader(mail.HeaderSubject); len(got) != 1 || got[0] != "Upload failed" {
		t.Errorf("unexpected subject %v", got)
	}
}

func TestMailer_InvalidSender(t *testing.T) {
	m, err := NewMailer(config.MailConfig{Host: "localhost", Port: 25, From: "not an address", To: config.Recipients{"ops@example.com"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.message("s", "m"); err == nil {
		t.Error("expected invalid sender error")
	}
}

func TestMailer_DeliveryFailureIsContained(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m, err := NewMailer(config.MailConfig{
		Host: "127.0.0.1",
		Port: port,
		From: "dirsync@example.com",
		To:   config.Recipients{"ops@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}

	m.Notify("Upload failed", "cause")
	m.Wait()
}
