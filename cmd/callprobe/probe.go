package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"chatcore-backend/pkg/logger"
)

const probeLabel = "callprobe"

// probe drives one side of a call over a single data channel. The exchange
// only ever sees the complete session description as JSON text.
type probe struct {
	client  *exchangeClient
	pc      *webrtc.PeerConnection
	message string
	poll    time.Duration

	opened   chan struct{}
	received chan string
	failed   chan error
}

func newProbe(client *exchangeClient, stunURL, message string, poll time.Duration) (*probe, error) {
	config := webrtc.Configuration{}
	if stunURL != "" {
		config.ICEServers = []webrtc.ICEServer{{URLs: []string{stunURL}}}
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	p := &probe{
		client:   client,
		pc:       pc,
		message:  message,
		poll:     poll,
		opened:   make(chan struct{}),
		received: make(chan string, 1),
		failed:   make(chan error, 1),
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Info("ICE state changed", zap.String("state", state.String()))
		if state == webrtc.ICEConnectionStateFailed {
			p.fail(fmt.Errorf("ICE connection failed"))
		}
	})
	return p, nil
}

func (p *probe) fail(err error) {
	select {
	case p.failed <- err:
	default:
	}
}

func (p *probe) close() {
	if err := p.pc.Close(); err != nil {
		logger.Warn("Failed to close peer connection", zap.Error(err))
	}
}

// offer starts the session, publishes the offer and applies the answer
func (p *probe) offer(ctx context.Context, sessionID, peer uuid.UUID) (uuid.UUID, error) {
	session, err := p.client.start(ctx, sessionID, peer)
	if err != nil {
		return uuid.Nil, err
	}
	logger.Info("Call session started", logger.SessionID(session.ID), logger.UserID(peer))

	dc, err := p.pc.CreateDataChannel(probeLabel, nil)
	if err != nil {
		return session.ID, fmt.Errorf("creating data channel: %w", err)
	}
	p.wire(dc, false)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return session.ID, fmt.Errorf("creating SDP offer: %w", err)
	}
	if err := p.publishLocal(ctx, session.ID, offer); err != nil {
		return session.ID, err
	}

	blob, err := p.client.awaitPeer(ctx, session.ID, p.poll)
	if err != nil {
		return session.ID, err
	}
	answer, err := decode(blob, webrtc.SDPTypeAnswer)
	if err != nil {
		return session.ID, err
	}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return session.ID, fmt.Errorf("setting remote description: %w", err)
	}
	return session.ID, nil
}

// answer waits for the offer of an existing session and publishes the answer
func (p *probe) answer(ctx context.Context, sessionID uuid.UUID) error {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.wire(dc, true)
	})

	blob, err := p.client.awaitPeer(ctx, sessionID, p.poll)
	if err != nil {
		return err
	}
	offer, err := decode(blob, webrtc.SDPTypeOffer)
	if err != nil {
		return err
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	return p.publishLocal(ctx, sessionID, answer)
}

// publishLocal waits for ICE gathering so the published description carries
// every candidate, then relays it as text
func (p *probe) publishLocal(ctx context.Context, sessionID uuid.UUID, desc webrtc.SessionDescription) error {
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return fmt.Errorf("ICE gathering: %w", ctx.Err())
	}

	blob, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return err
	}
	if err := p.client.publish(ctx, sessionID, string(blob)); err != nil {
		return err
	}
	logger.Info("Session description published",
		logger.SessionID(sessionID),
		zap.String("type", desc.Type.String()),
		zap.Int("bytes", len(blob)))
	return nil
}

// wire sends the probe message once the channel opens. The answering side
// echoes whatever it receives.
func (p *probe) wire(dc *webrtc.DataChannel, echo bool) {
	dc.OnOpen(func() {
		close(p.opened)
		if echo {
			return
		}
		if err := dc.SendText(p.message); err != nil {
			p.fail(fmt.Errorf("sending probe message: %w", err))
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		text := string(msg.Data)
		if echo {
			if err := dc.SendText(text); err != nil {
				logger.Warn("Failed to echo probe message", zap.Error(err))
			}
		}
		select {
		case p.received <- text:
		default:
		}
	})
}

// wait blocks until the probe message made the round trip
func (p *probe) wait(ctx context.Context) (string, error) {
	select {
	case <-p.opened:
	case err := <-p.failed:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for data channel: %w", ctx.Err())
	}

	select {
	case text := <-p.received:
		return text, nil
	case err := <-p.failed:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for probe message: %w", ctx.Err())
	}
}

func decode(blob string, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(blob), &desc); err != nil {
		return desc, fmt.Errorf("peer signal is not a session description: %w", err)
	}
	if desc.Type != want {
		return desc, fmt.Errorf("peer signal is %s, expected %s", desc.Type, want)
	}
	return desc, nil
}
