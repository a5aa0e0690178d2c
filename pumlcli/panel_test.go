package pumlcli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"oss.terrastruct.com/pumlview/pumlpreview"
)

func TestPanelGraceReattach(t *testing.T) {
	t.Parallel()

	w := &watcher{ms: testState(t, t.TempDir())}
	p := newWebPanel(w, "panel")

	var disposes int
	p.Subscribe(func(m pumlpreview.Message) {
		if _, ok := m.(pumlpreview.DisposeMessage); ok {
			disposes++
		}
	})

	newTok := func() *connToken {
		_, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		return &connToken{cancel: cancel}
	}

	tok1 := newTok()
	assert.True(t, p.attach(tok1))
	p.detach(tok1, time.Hour)

	// The tab reconnects just as the first grace period runs out.
	tok2 := newTok()
	assert.True(t, p.attach(tok2))
	p.graceExpired(1)
	assert.Equal(t, 0, disposes)
	assert.True(t, p.attached(tok2))

	// A stale callback must not cut the second grace period short.
	p.detach(tok2, time.Hour)
	p.graceExpired(1)
	assert.Equal(t, 0, disposes)

	p.graceExpired(2)
	assert.Equal(t, 1, disposes)
}
