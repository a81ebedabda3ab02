package slackchat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// socketClient is the part of *socketmode.Client the source drives.
type socketClient interface {
	Ack(req socketmode.Request, payload ...interface{})
	RunContext(ctx context.Context) error
}

var _ socketClient = (*socketmode.Client)(nil)

// SocketSource receives events over Socket Mode.
type SocketSource struct {
	client socketClient
	events <-chan socketmode.Event
	out    Responder
	logger *slog.Logger

	// requests are acked before they are handled; inflight tracks the
	// handlers so Run can drain them.
	inflight sync.WaitGroup
}

// NewSocketSource connects with api's app-level token. Slash command replies
// are delivered through out once the command has been acked.
func NewSocketSource(api *slack.Client, out Responder, logger *slog.Logger) *SocketSource {
	client := socketmode.New(api)
	return newSocketSource(client, client.Events, out, logger)
}

func newSocketSource(client socketClient, events <-chan socketmode.Event, out Responder, logger *slog.Logger) *SocketSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketSource{client: client, events: events, out: out, logger: logger}
}

// Run connects and dispatches events to h until ctx is cancelled. Every
// request is acknowledged first and then handled on its own goroutine, so a
// slow channel scan never holds up reactions elsewhere. Run returns once all
// started handlers have finished; they outlive ctx so acked work is not
// dropped, and h bounds each one with its own timeout.
func (s *SocketSource) Run(ctx context.Context, h Handler) error {
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.loop(loopCtx, context.WithoutCancel(ctx), h)
	}()

	err := s.client.RunContext(ctx)
	stopLoop()
	<-loopDone
	s.inflight.Wait()

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode: %w", err)
	}
	return nil
}

func (s *SocketSource) loop(loopCtx, ctx context.Context, h Handler) {
	for {
		select {
		case <-loopCtx.Done():
			return
		case evt, ok := <-s.events:
			if !ok {
				return
			}
			s.handle(ctx, h, evt)
		}
	}
}

func (s *SocketSource) handle(ctx context.Context, h Handler, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		s.logger.Info("connecting to slack socket mode")
	case socketmode.EventTypeConnected:
		s.logger.Info("connected to slack socket mode")
	case socketmode.EventTypeConnectionError:
		s.logger.Warn("slack socket mode connection error")

	case socketmode.EventTypeEventsAPI:
		ev, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			s.logger.Warn("unexpected events api payload", slog.String("type", fmt.Sprintf("%T", evt.Data)))
			return
		}
		s.ack(evt)
		s.spawn(func() {
			if !Dispatch(ctx, h, ev) {
				s.logger.Debug("ignoring events api event", slog.String("inner_type", ev.InnerEvent.Type))
			}
		})

	case socketmode.EventTypeSlashCommand:
		sc, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			s.logger.Warn("unexpected slash command payload", slog.String("type", fmt.Sprintf("%T", evt.Data)))
			return
		}
		// Empty ack; the reply follows through the Responder.
		s.ack(evt)
		s.spawn(func() { AnswerCommand(ctx, h, s.out, CommandFrom(sc), s.logger) })
	}
}

func (s *SocketSource) ack(evt socketmode.Event) {
	if evt.Request != nil {
		s.client.Ack(*evt.Request)
	}
}

func (s *SocketSource) spawn(fn func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn()
	}()
}
