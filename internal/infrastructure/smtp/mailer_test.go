package smtp

import (
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendEmail_BuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m := &mailer{host: "mail.local", port: "1025", from: "noreply@njala.edu",
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			assert.Nil(t, a)
			return nil
		}}

	require.NoError(t, m.SendEmail("alice@example.com", "Your code", "<p>123456</p>"))
	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, "noreply@njala.edu", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Your code\r\n")
	assert.Contains(t, string(gotMsg), "Content-Type: text/html")
	assert.Contains(t, string(gotMsg), "\r\n\r\n<p>123456</p>")
}

func TestSendEmail_UsesAuthWhenConfigured(t *testing.T) {
	called := false
	m := &mailer{host: "mail.local", port: "587", from: "x@y", username: "u", password: "p",
		send: func(_ string, a smtp.Auth, _ string, _ []string, _ []byte) error {
			called = true
			assert.NotNil(t, a)
			return nil
		}}
	require.NoError(t, m.SendEmail("a@b.com", "s", "b"))
	assert.True(t, called)
}

func TestSendEmail_RejectsHeaderInjection(t *testing.T) {
	m := &mailer{send: func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not send")
		return nil
	}}
	assert.Error(t, m.SendEmail("a@b.com\r\nBcc: evil@x.com", "s", "b"))
	assert.Error(t, m.SendEmail("a@b.com", "s\nBcc: evil@x.com", "b"))
}
