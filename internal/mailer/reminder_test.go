package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	to, subject, html, text string
	err                     error
}

func (c *captureSender) Send(_ context.Context, to, subject, h, t string) error {
	c.to, c.subject, c.html, c.text = to, subject, h, t
	return c.err
}

func TestReminder_Send(t *testing.T) {
	cs := &captureSender{}
	r, err := NewReminder(cs)
	require.NoError(t, err)

	err = r.Send(context.Background(), "alice@example.org", "Your username", ReminderVars{
		SiteName: "Example",
		Username: "<alice>",
		LoginURL: "https://example.org/index.php?option=com_users&view=login",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", cs.to)
	assert.Equal(t, "Your username", cs.subject)
	assert.Contains(t, cs.text, "Your username is <alice>.")
	assert.Contains(t, cs.html, "&lt;alice&gt;")
	assert.Contains(t, cs.html, `href="https://example.org/index.php?option=com_users&amp;view=login"`)
}

func TestReminder_SenderError(t *testing.T) {
	cs := &captureSender{err: errors.New("dial tcp: refused")}
	r, err := NewReminder(cs)
	require.NoError(t, err)
	assert.Error(t, r.Send(context.Background(), "a@b.c", "s", ReminderVars{}))
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), "a@b.c", "s", "", ""))
}
