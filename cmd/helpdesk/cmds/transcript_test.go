package cmds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

func TestTranscript(t *testing.T) {
	conv := helpdesk.Conversation{ID: "c1", Subject: "Printer"}
	msgs := []helpdesk.Message{
		{ID: "m1", Sender: helpdesk.User{Name: "Ana"}, Body: "It jams", SentAt: time.Now().Add(-time.Hour)},
		{ID: "m2", Sender: helpdesk.User{ID: "s1"}, Attachment: &helpdesk.Attachment{URL: "/uploads/jam.png", Size: 2048}},
	}
	md := transcript(conv, msgs)
	require.Contains(t, md, "# Printer")
	require.Contains(t, md, "**Ana** · _1 hour ago_")
	require.Contains(t, md, "It jams")
	require.Contains(t, md, "![jam.png](/uploads/jam.png) (2.0 kB)")
	require.Contains(t, md, "**s1**")
}
