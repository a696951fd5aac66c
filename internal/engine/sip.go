package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/code-100-precent/LingDial/pkg/logger"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
	"go.uber.org/zap"
)

// SipConfig carries everything the SIP engine needs to sign on
type SipConfig struct {
	Domain     string
	Username   string
	Password   string
	ListenIP   string
	Port       int
	Transport  string
	RTPPortMin int
	RTPPortMax int
}

// SipEngine is the production engine: SIP signaling through sipgo with a
// minimal RTP receive path that captures remote audio to WAV files.
type SipEngine struct {
	cfg    SipConfig
	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	mu      sync.Mutex
	calls   map[string]*sipHandle
	nextRTP int
	closed  bool

	events chan Event
	cancel context.CancelFunc
}

func NewSipEngine(cfg SipConfig) (*SipEngine, error) {
	if cfg.Transport == "" {
		cfg.Transport = "udp"
	}
	if cfg.Port == 0 {
		cfg.Port = 5060
	}
	if cfg.RTPPortMin == 0 {
		cfg.RTPPortMin = 10000
	}
	if cfg.RTPPortMax <= cfg.RTPPortMin {
		cfg.RTPPortMax = cfg.RTPPortMin + 100
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent("LingDial/1.0"))
	if err != nil {
		return nil, fmt.Errorf("create sip ua: %w", err)
	}
	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(cfg.ListenIP))
	if err != nil {
		return nil, fmt.Errorf("create sip client: %w", err)
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, fmt.Errorf("create sip server: %w", err)
	}

	e := &SipEngine{
		cfg:     cfg,
		ua:      ua,
		client:  client,
		server:  server,
		calls:   make(map[string]*sipHandle),
		nextRTP: cfg.RTPPortMin,
		events:  make(chan Event, 16),
	}
	server.OnInvite(e.onInvite)
	server.OnAck(e.onAck)
	server.OnBye(e.onBye)
	server.OnCancel(e.onCancel)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	listenAddr := fmt.Sprintf("%s:%d", cfg.ListenIP, cfg.Port)
	go func() {
		if err := server.ListenAndServe(ctx, cfg.Transport, listenAddr); err != nil && ctx.Err() == nil {
			logger.Error("sip server stopped", zap.Error(err))
		}
	}()
	logger.Info("sip engine listening",
		zap.String("addr", listenAddr),
		zap.String("transport", cfg.Transport),
	)

	if cfg.Username != "" {
		go e.registerLoop(ctx)
	}
	return e, nil
}

// registerLoop keeps the account registered with the domain. Registration
// is best effort: failures are logged and retried, calls are not blocked.
func (e *SipEngine) registerLoop(ctx context.Context) {
	const expires = 3600

	for {
		if err := e.register(ctx, expires); err != nil {
			logger.Warn("sip registration failed", zap.String("domain", e.cfg.Domain), zap.Error(err))
		} else {
			logger.Info("sip registration ok", zap.String("user", e.cfg.Username), zap.String("domain", e.cfg.Domain))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(expires / 2 * time.Second):
		}
	}
}

// register sends a REGISTER, answering one digest challenge if the
// registrar asks for credentials
func (e *SipEngine) register(ctx context.Context, expires int) error {
	target := sip.Uri{Host: e.cfg.Domain}
	account := sip.Uri{User: e.cfg.Username, Host: e.cfg.Domain}

	build := func(authorization string) *sip.Request {
		req := sip.NewRequest(sip.REGISTER, target)

		from := sip.FromHeader{Address: account, Params: sip.NewParams()}
		from.Params.Add("tag", sip.GenerateTagN(8))
		req.AppendHeader(&from)
		to := sip.ToHeader{Address: account}
		req.AppendHeader(&to)
		contact := sip.ContactHeader{Address: sip.Uri{User: e.cfg.Username, Host: e.cfg.ListenIP, Port: e.cfg.Port}}
		req.AppendHeader(&contact)
		callIDHeader := sip.CallIDHeader(sip.GenerateTagN(16))
		req.AppendHeader(&callIDHeader)
		cseqHeader := sip.CSeqHeader{SeqNo: 1, MethodName: sip.REGISTER}
		req.AppendHeader(&cseqHeader)
		maxFwd := sip.MaxForwardsHeader(70)
		req.AppendHeader(&maxFwd)
		req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expires)))
		if authorization != "" {
			req.AppendHeader(sip.NewHeader("Authorization", authorization))
		}
		return req
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := e.transact(sendCtx, build(""))
	if err != nil {
		return err
	}

	if resp.StatusCode == 401 || resp.StatusCode == 407 {
		challengeHeader := resp.GetHeader("WWW-Authenticate")
		if challengeHeader == nil {
			challengeHeader = resp.GetHeader("Proxy-Authenticate")
		}
		if challengeHeader == nil {
			return fmt.Errorf("registrar challenged without an authenticate header")
		}
		chal, err := digest.ParseChallenge(challengeHeader.Value())
		if err != nil {
			return fmt.Errorf("parse digest challenge: %w", err)
		}
		cred, err := digest.Digest(chal, digest.Options{
			Method:   string(sip.REGISTER),
			URI:      target.String(),
			Username: e.cfg.Username,
			Password: e.cfg.Password,
		})
		if err != nil {
			return fmt.Errorf("compute digest response: %w", err)
		}
		resp, err = e.transact(sendCtx, build(cred.String()))
		if err != nil {
			return err
		}
	}

	if resp.StatusCode != 200 {
		return fmt.Errorf("registrar answered %d %s", resp.StatusCode, resp.Reason)
	}
	return nil
}

// transact sends a request and waits for its final response
func (e *SipEngine) transact(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	tx, err := e.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer tx.Terminate()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-tx.Responses():
			if !ok {
				return nil, fmt.Errorf("transaction closed without final response")
			}
			if resp.StatusCode >= 200 {
				return resp, nil
			}
		}
	}
}

func (e *SipEngine) Name() string         { return "sip" }
func (e *SipEngine) Events() <-chan Event { return e.events }

func (e *SipEngine) Close() error {
	e.cancel()
	e.mu.Lock()
	for _, h := range e.calls {
		h.closeMedia()
	}
	e.calls = make(map[string]*sipHandle)
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	e.mu.Unlock()
	return e.ua.Close()
}

// Dial sends an INVITE with an SDP audio offer and tracks the
// transaction until the call connects or fails
func (e *SipEngine) Dial(ctx context.Context, destination string) (Handle, error) {
	var target sip.Uri
	if err := sip.ParseUri(destination, &target); err != nil {
		return nil, fmt.Errorf("parse destination uri: %w", err)
	}

	media, err := e.newMediaSession()
	if err != nil {
		return nil, fmt.Errorf("allocate media port: %w", err)
	}

	callID := sip.GenerateTagN(16)
	req := sip.NewRequest(sip.INVITE, target)
	e.appendDialogHeaders(req, target, callID, 1, sip.INVITE)

	offer := buildSDPOffer(e.cfg.ListenIP, media.localPort())
	req.SetBody([]byte(offer))
	contentType := sip.ContentTypeHeader("application/sdp")
	req.AppendHeader(&contentType)

	tx, err := e.client.TransactionRequest(ctx, req)
	if err != nil {
		media.close()
		return nil, fmt.Errorf("send invite: %w", err)
	}

	h := &sipHandle{
		engine:    e,
		callID:    callID,
		remoteURI: destination,
		target:    target,
		media:     media,
		invite:    req,
		cseq:      1,
	}
	e.mu.Lock()
	e.calls[callID] = h
	e.mu.Unlock()

	go e.trackOutbound(h, tx)
	return h, nil
}

// trackOutbound consumes provisional and final responses for an INVITE
func (e *SipEngine) trackOutbound(h *sipHandle, tx sip.ClientTransaction) {
	for {
		select {
		case <-tx.Done():
			return
		case resp, ok := <-tx.Responses():
			if !ok {
				return
			}
			switch {
			case resp.StatusCode == 180 || resp.StatusCode == 183:
				e.emit(Event{CallID: h.callID, State: StateRinging, RemoteURI: h.remoteURI})

			case resp.StatusCode == 200:
				ack := sip.NewAckRequest(h.invite, resp, nil)
				if err := e.client.WriteRequest(ack); err != nil {
					logger.Error("send ack failed", zap.String("callId", h.callID), zap.Error(err))
				}
				if err := h.media.connectRemote(resp.Body()); err != nil {
					logger.Warn("parse sdp answer failed", zap.String("callId", h.callID), zap.Error(err))
				}
				h.media.start()
				e.emit(Event{CallID: h.callID, State: StateConnected, RemoteURI: h.remoteURI})
				return

			case resp.StatusCode >= 400:
				e.dropCall(h)
				e.emit(Event{
					CallID:    h.callID,
					State:     StateFailed,
					RemoteURI: h.remoteURI,
					Reason:    fmt.Sprintf("%d %s", resp.StatusCode, resp.Reason),
				})
				return
			}
		}
	}
}

// onInvite handles an incoming call: park the transaction, answer 180,
// and surface the call to the registry
func (e *SipEngine) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	callIDHeader := req.CallID()
	if callIDHeader == nil {
		tx.Respond(sip.NewResponseFromRequest(req, 400, "Missing Call-ID", nil))
		return
	}
	callID := callIDHeader.Value()

	remoteURI := ""
	if from := req.From(); from != nil {
		remoteURI = from.Address.String()
	}

	media, err := e.newMediaSession()
	if err != nil {
		logger.Error("no media port for incoming call", zap.String("callId", callID), zap.Error(err))
		tx.Respond(sip.NewResponseFromRequest(req, 503, "Service Unavailable", nil))
		return
	}
	if err := media.connectRemote(req.Body()); err != nil {
		logger.Warn("parse sdp offer failed", zap.String("callId", callID), zap.Error(err))
	}

	h := &sipHandle{
		engine:    e,
		callID:    callID,
		remoteURI: remoteURI,
		media:     media,
		incoming:  true,
		inviteReq: req,
		inviteTx:  tx,
	}
	e.mu.Lock()
	e.calls[callID] = h
	e.mu.Unlock()

	tx.Respond(sip.NewResponseFromRequest(req, 180, "Ringing", nil))
	e.emit(Event{CallID: callID, State: StateRinging, RemoteURI: remoteURI, Incoming: true, Handle: h})
}

func (e *SipEngine) onAck(req *sip.Request, tx sip.ServerTransaction) {
	h := e.lookup(req)
	if h == nil || !h.incoming {
		return
	}
	h.media.start()
	e.emit(Event{CallID: h.callID, State: StateConnected, RemoteURI: h.remoteURI, Incoming: true})
}

func (e *SipEngine) onBye(req *sip.Request, tx sip.ServerTransaction) {
	tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil))
	h := e.lookup(req)
	if h == nil {
		return
	}
	e.dropCall(h)
	e.emit(Event{CallID: h.callID, State: StateEnded, RemoteURI: h.remoteURI, Reason: "remote hangup"})
}

func (e *SipEngine) onCancel(req *sip.Request, tx sip.ServerTransaction) {
	tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil))
	h := e.lookup(req)
	if h == nil {
		return
	}
	if h.inviteTx != nil {
		h.inviteTx.Respond(sip.NewResponseFromRequest(h.inviteReq, 487, "Request Terminated", nil))
	}
	e.dropCall(h)
	e.emit(Event{CallID: h.callID, State: StateEnded, RemoteURI: h.remoteURI, Reason: "cancelled"})
}

func (e *SipEngine) lookup(req *sip.Request) *sipHandle {
	callIDHeader := req.CallID()
	if callIDHeader == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[callIDHeader.Value()]
}

func (e *SipEngine) dropCall(h *sipHandle) {
	e.mu.Lock()
	delete(e.calls, h.callID)
	e.mu.Unlock()
	h.closeMedia()
}

// emit publishes an event unless the engine is already closed. Response
// trackers can outlive Close, so sending must never hit a closed channel.
func (e *SipEngine) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
		logger.Warn("sip event dropped", zap.String("callId", ev.CallID), zap.String("state", string(ev.State)))
	}
}

func (e *SipEngine) appendDialogHeaders(req *sip.Request, target sip.Uri, callID string, cseq uint32, method sip.RequestMethod) {
	localURI := sip.Uri{User: e.cfg.Username, Host: e.cfg.ListenIP, Port: e.cfg.Port}
	if localURI.User == "" {
		localURI.User = "lingdial"
	}

	from := sip.FromHeader{Address: localURI, Params: sip.NewParams()}
	from.Params.Add("tag", sip.GenerateTagN(8))
	req.AppendHeader(&from)

	to := sip.ToHeader{Address: target}
	req.AppendHeader(&to)

	contact := sip.ContactHeader{Address: localURI}
	req.AppendHeader(&contact)

	callIDHeader := sip.CallIDHeader(callID)
	req.AppendHeader(&callIDHeader)

	cseqHeader := sip.CSeqHeader{SeqNo: cseq, MethodName: method}
	req.AppendHeader(&cseqHeader)

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)
}

// sipHandle implements Handle for one SIP dialog
type sipHandle struct {
	engine    *SipEngine
	callID    string
	remoteURI string
	target    sip.Uri
	media     *mediaSession
	incoming  bool
	cseq      uint32
	muted     bool

	// inbound dialog state
	inviteReq *sip.Request
	inviteTx  sip.ServerTransaction

	// outbound dialog state
	invite *sip.Request

	mu        sync.Mutex
	closeOnce sync.Once
}

func (h *sipHandle) ID() string        { return h.callID }
func (h *sipHandle) RemoteURI() string { return h.remoteURI }

// nextCSeq advances the dialog sequence number by one
func (h *sipHandle) nextCSeq() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cseq++
	return h.cseq
}

// Answer sends 200 OK with an SDP answer for the parked INVITE; the
// connected event fires when the remote ACKs
func (h *sipHandle) Answer() error {
	if !h.incoming || h.inviteTx == nil {
		return errors.New("not an answerable incoming call")
	}
	answer := buildSDPOffer(h.engine.cfg.ListenIP, h.media.localPort())
	resp := sip.NewResponseFromRequest(h.inviteReq, 200, "OK", []byte(answer))
	contentType := sip.ContentTypeHeader("application/sdp")
	resp.AppendHeader(&contentType)
	return h.inviteTx.Respond(resp)
}

// Hangup ends the dialog. Established calls get a BYE; an unanswered
// incoming call is rejected with 486.
func (h *sipHandle) Hangup() error {
	if h.incoming && h.inviteTx != nil && !h.media.started() {
		err := h.inviteTx.Respond(sip.NewResponseFromRequest(h.inviteReq, 486, "Busy Here", nil))
		h.engine.dropCall(h)
		return err
	}

	bye := sip.NewRequest(sip.BYE, h.target)
	h.engine.appendDialogHeaders(bye, h.target, h.callID, h.nextCSeq(), sip.BYE)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.engine.client.TransactionRequest(ctx, bye)
	h.engine.dropCall(h)
	return err
}

// Hold pauses the local media path.
// TODO: renegotiate with a re-INVITE carrying a=sendonly so the remote
// party stops streaming as well.
func (h *sipHandle) Hold() error {
	h.media.setHeld(true)
	return nil
}

func (h *sipHandle) Resume() error {
	h.media.setHeld(false)
	return nil
}

// SetMuted only tracks state for now. There is no transmit audio path
// yet, so there is nothing to silence on the wire.
func (h *sipHandle) SetMuted(muted bool) error {
	h.mu.Lock()
	h.muted = muted
	h.mu.Unlock()
	return nil
}

// SendDTMF emits RFC 2833 telephone-event packets for each digit
func (h *sipHandle) SendDTMF(digits string) error {
	return h.media.sendDTMF(digits)
}

func (h *sipHandle) StartRecording(path string) error {
	return h.media.startRecording(path)
}

func (h *sipHandle) StopRecording() error {
	return h.media.stopRecording()
}

func (h *sipHandle) closeMedia() {
	h.closeOnce.Do(func() {
		if err := h.media.stopRecording(); err != nil {
			logger.Warn("finalize recording", zap.String("callId", h.callID), zap.Error(err))
		}
		h.media.close()
	})
}
