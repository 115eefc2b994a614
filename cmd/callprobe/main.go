// callprobe checks the signaling exchange end to end with a real WebRTC
// transport. One side runs with --role offer, the other with --role answer;
// both relay complete (non-trickle) session descriptions through the
// video-service REST API and then bounce a message over a data channel.
//
//	callprobe --role offer  --peer <user-id> --session <id> --token $ALICE
//	callprobe --role answer --session <id> --token $BOB
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"chatcore-backend/pkg/env"
	"chatcore-backend/pkg/logger"
)

type options struct {
	server  string
	token   string
	role    string
	peer    string
	session string
	stun    string
	message string
	timeout time.Duration
	poll    time.Duration
	keep    bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("callprobe", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", env.GetString("CALLPROBE_SERVER", "http://localhost:8083"), "video-service base URL")
	flagSet.StringVar(&opts.token, "token", env.GetStringFromFile("CALLPROBE_TOKEN", ""), "bearer token of the probing user")
	flagSet.StringVar(&opts.role, "role", "offer", "offer or answer")
	flagSet.StringVar(&opts.peer, "peer", "", "user id to call (offer role)")
	flagSet.StringVar(&opts.session, "session", "", "session id to create (offer) or join (answer)")
	flagSet.StringVar(&opts.stun, "stun", "stun:stun.l.google.com:19302", "STUN server URL, empty for host candidates only")
	flagSet.StringVar(&opts.message, "message", "ping", "text sent over the data channel")
	flagSet.DurationVar(&opts.timeout, "timeout", time.Minute, "overall probe deadline")
	flagSet.DurationVar(&opts.poll, "poll", time.Second, "signal polling interval")
	flagSet.BoolVar(&opts.keep, "keep", false, "leave the session open when the probe finishes")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if opts.token == "" {
		return fmt.Errorf("--token or CALLPROBE_TOKEN is required")
	}

	logger.InitDefault()
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, opts.timeout)
	defer cancelTimeout()

	client := newExchangeClient(opts.server, opts.token, 10*time.Second)
	p, err := newProbe(client, opts.stun, opts.message, opts.poll)
	if err != nil {
		return err
	}
	defer p.close()

	var sessionID uuid.UUID
	if opts.session != "" {
		if sessionID, err = uuid.Parse(opts.session); err != nil {
			return fmt.Errorf("invalid --session: %w", err)
		}
	}

	switch opts.role {
	case "offer":
		peer, err := uuid.Parse(opts.peer)
		if err != nil {
			return fmt.Errorf("--peer must be a user id: %w", err)
		}
		if sessionID, err = p.offer(ctx, sessionID, peer); err != nil {
			return err
		}
	case "answer":
		if sessionID == uuid.Nil {
			return fmt.Errorf("--session is required for the answer role")
		}
		if err := p.answer(ctx, sessionID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown --role %q", opts.role)
	}

	start := time.Now()
	text, err := p.wait(ctx)
	if err != nil {
		return err
	}
	logger.Info("Probe message received",
		logger.SessionID(sessionID),
		zap.String("role", opts.role),
		zap.String("message", text),
		zap.Duration("elapsed", time.Since(start)))

	if opts.role == "answer" {
		// let the echo drain before the connection closes
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
	}
	if opts.role == "offer" && !opts.keep {
		if err := client.end(context.WithoutCancel(ctx), sessionID); err != nil {
			logger.Warn("Failed to end session", logger.SessionID(sessionID), zap.Error(err))
		}
	}
	fmt.Printf("ok session=%s role=%s message=%q\n", sessionID, opts.role, text)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: callprobe --role offer|answer [flags]\n\nFlags:\n")
	flagSet.PrintDefaults()
}
