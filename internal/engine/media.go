package engine

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/code-100-precent/LingDial/pkg/logger"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/youpy/go-wav"
	"github.com/zaf/g711"
	"go.uber.org/zap"
)

const (
	payloadTypePCMU = 0
	payloadTypePCMA = 8
	payloadTypeDTMF = 101

	mediaSampleRate = 8000
)

// newMediaSession binds a UDP socket from the configured RTP port range
func (e *SipEngine) newMediaSession() (*mediaSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	span := e.cfg.RTPPortMax - e.cfg.RTPPortMin
	for i := 0; i <= span; i += 2 {
		port := e.nextRTP
		e.nextRTP += 2
		if e.nextRTP > e.cfg.RTPPortMax {
			e.nextRTP = e.cfg.RTPPortMin
		}
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(e.cfg.ListenIP), Port: port})
		if err != nil {
			continue
		}
		return &mediaSession{
			conn: conn,
			ssrc: rand.Uint32(),
			done: make(chan struct{}),
		}, nil
	}
	return nil, errors.New("rtp port range exhausted")
}

// mediaSession owns one RTP socket. Incoming G.711 audio is decoded to
// 16-bit PCM and buffered for the recorder; the WAV file is written when
// capture stops because the container needs the sample count up front.
type mediaSession struct {
	conn *net.UDPConn
	ssrc uint32

	mu            sync.Mutex
	remote        *net.UDPAddr
	running       bool
	held          bool
	recordingPath string
	pcm           bytes.Buffer
	seq           uint16
	ts            uint32

	done      chan struct{}
	closeOnce sync.Once
}

func (m *mediaSession) localPort() int {
	return m.conn.LocalAddr().(*net.UDPAddr).Port
}

// connectRemote points the session at the audio endpoint described by an
// SDP body
func (m *mediaSession) connectRemote(body []byte) error {
	if len(body) == 0 {
		return errors.New("empty sdp body")
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return fmt.Errorf("unmarshal sdp: %w", err)
	}
	if len(desc.MediaDescriptions) == 0 {
		return errors.New("sdp has no media section")
	}

	audio := desc.MediaDescriptions[0]
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media == "audio" {
			audio = md
			break
		}
	}

	host := ""
	if audio.ConnectionInformation != nil && audio.ConnectionInformation.Address != nil {
		host = audio.ConnectionInformation.Address.Address
	} else if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		host = desc.ConnectionInformation.Address.Address
	}
	if host == "" {
		return errors.New("sdp has no connection address")
	}

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, audio.MediaName.Port.Value))
	if err != nil {
		return fmt.Errorf("resolve rtp address: %w", err)
	}

	m.mu.Lock()
	m.remote = addr
	m.mu.Unlock()
	return nil
}

// start launches the receive loop, once
func (m *mediaSession) start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()
	go m.readLoop()
}

func (m *mediaSession) started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mediaSession) readLoop() {
	buf := make([]byte, 1500)
	for {
		select {
		case <-m.done:
			return
		default:
		}

		m.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		m.consume(&pkt)
	}
}

func (m *mediaSession) consume(pkt *rtp.Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held || m.recordingPath == "" {
		return
	}

	switch pkt.PayloadType {
	case payloadTypePCMU:
		m.pcm.Write(g711.DecodeUlaw(pkt.Payload))
	case payloadTypePCMA:
		m.pcm.Write(g711.DecodeAlaw(pkt.Payload))
	}
}

// startRecording arms capture into the given path
func (m *mediaSession) startRecording(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordingPath != "" {
		return errors.New("recording already in progress")
	}
	m.recordingPath = path
	m.pcm.Reset()
	return nil
}

// stopRecording flushes buffered PCM to a WAV file. Calling it with no
// active capture is a no-op.
func (m *mediaSession) stopRecording() error {
	m.mu.Lock()
	path := m.recordingPath
	m.recordingPath = ""
	data := make([]byte, m.pcm.Len())
	copy(data, m.pcm.Bytes())
	m.pcm.Reset()
	m.mu.Unlock()

	if path == "" {
		return nil
	}
	if len(data) == 0 {
		logger.Info("no audio captured, recording skipped", zap.String("path", path))
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer f.Close()

	numSamples := uint32(len(data) / 2)
	writer := wav.NewWriter(f, numSamples, 1, mediaSampleRate, 16)
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	logger.Info("recording written", zap.String("path", path), zap.Uint32("samples", numSamples))
	return nil
}

func (m *mediaSession) setHeld(held bool) {
	m.mu.Lock()
	m.held = held
	m.mu.Unlock()
}

var dtmfEvents = map[rune]byte{
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4,
	'5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
	'*': 10, '#': 11, 'A': 12, 'B': 13, 'C': 14, 'D': 15,
}

// sendDTMF transmits each digit as an RFC 2833 telephone-event: one
// marked start packet and two end packets
func (m *mediaSession) sendDTMF(digits string) error {
	m.mu.Lock()
	remote := m.remote
	m.mu.Unlock()
	if remote == nil {
		return errors.New("no remote media endpoint")
	}

	for _, digit := range digits {
		event, ok := dtmfEvents[digit]
		if !ok {
			return fmt.Errorf("unsupported dtmf digit %q", digit)
		}

		// duration of one 20ms frame at 8kHz
		const frame = 160
		for i := 0; i < 3; i++ {
			end := byte(0)
			if i > 0 {
				end = 0x80
			}
			payload := []byte{event, end | 10, byte(frame >> 8 & 0xff), byte(frame & 0xff)}

			m.mu.Lock()
			m.seq++
			pkt := rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         i == 0,
					PayloadType:    payloadTypeDTMF,
					SequenceNumber: m.seq,
					Timestamp:      m.ts,
					SSRC:           m.ssrc,
				},
				Payload: payload,
			}
			m.mu.Unlock()

			raw, err := pkt.Marshal()
			if err != nil {
				return fmt.Errorf("marshal dtmf packet: %w", err)
			}
			if _, err := m.conn.WriteToUDP(raw, remote); err != nil {
				return fmt.Errorf("send dtmf packet: %w", err)
			}
			time.Sleep(20 * time.Millisecond)
		}
		m.mu.Lock()
		m.ts += frame * 3
		m.mu.Unlock()
	}
	return nil
}

func (m *mediaSession) close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.conn.Close()
	})
}

// buildSDPOffer renders a minimal G.711 audio offer
func buildSDPOffer(localIP string, rtpPort int) string {
	now := time.Now().Unix()
	return fmt.Sprintf(`v=0
o=- %d %d IN IP4 %s
s=LingDial
c=IN IP4 %s
t=0 0
m=audio %d RTP/AVP 0 8 101
a=rtpmap:0 PCMU/8000
a=rtpmap:8 PCMA/8000
a=rtpmap:101 telephone-event/8000
a=fmtp:101 0-16
a=sendrecv
a=ptime:20
`, now, now, localIP, localIP, rtpPort)
}
