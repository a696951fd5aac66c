package engine

import (
	"testing"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendDialogHeaders(t *testing.T) {
	e := &SipEngine{cfg: SipConfig{Username: "alice", ListenIP: "127.0.0.1", Port: 5070}}

	var target sip.Uri
	require.NoError(t, sip.ParseUri("sip:bob@pbx.local", &target))

	req := sip.NewRequest(sip.INVITE, target)
	e.appendDialogHeaders(req, target, "dialog-1", 1, sip.INVITE)

	from := req.From()
	require.NotNil(t, from)
	assert.Equal(t, "alice", from.Address.User)

	to := req.To()
	require.NotNil(t, to)
	assert.Equal(t, "bob", to.Address.User)
	assert.Equal(t, "pbx.local", to.Address.Host)

	callID := req.CallID()
	require.NotNil(t, callID)
	assert.Equal(t, "dialog-1", callID.Value())

	cseq := req.CSeq()
	require.NotNil(t, cseq)
	assert.Equal(t, uint32(1), cseq.SeqNo)
	assert.Equal(t, sip.INVITE, cseq.MethodName)
}

func TestAppendDialogHeaders_DefaultsLocalUser(t *testing.T) {
	e := &SipEngine{cfg: SipConfig{ListenIP: "127.0.0.1", Port: 5070}}

	var target sip.Uri
	require.NoError(t, sip.ParseUri("sip:bob@pbx.local", &target))

	req := sip.NewRequest(sip.BYE, target)
	e.appendDialogHeaders(req, target, "dialog-2", 2, sip.BYE)

	from := req.From()
	require.NotNil(t, from)
	assert.Equal(t, "lingdial", from.Address.User)
}

func TestSipEngine_LateEventAfterCloseIsDropped(t *testing.T) {
	ua, err := sipgo.NewUA()
	require.NoError(t, err)

	e := &SipEngine{
		ua:     ua,
		calls:  make(map[string]*sipHandle),
		events: make(chan Event, 1),
		cancel: func() {},
	}
	require.NoError(t, e.Close())

	// A response tracker can still fire after shutdown
	assert.NotPanics(t, func() {
		e.emit(Event{CallID: "late", State: StateEnded, RemoteURI: "sip:bob@pbx.local"})
	})
}

func TestSipHandle_ByeSequenceFollowsInvite(t *testing.T) {
	// Outbound dialogs send the INVITE with sequence 1
	h := &sipHandle{cseq: 1}

	assert.Equal(t, uint32(2), h.nextCSeq())
	assert.Equal(t, uint32(3), h.nextCSeq())
}

func TestSipHandle_SetMutedTracksState(t *testing.T) {
	h := &sipHandle{}

	require.NoError(t, h.SetMuted(true))
	assert.True(t, h.muted)

	require.NoError(t, h.SetMuted(false))
	assert.False(t, h.muted)
}
