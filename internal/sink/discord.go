package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/types"
)

// messagePoster is the slice of discordgo.Session the sink uses, as an
// interface so tests can record sends without a gateway connection.
type messagePoster interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts caption lines to a channel through a bot session. Sends run
// asynchronously and at most one at a time: a caption arriving while the
// previous send is still in flight is dropped, which keeps a rate-limited or
// slow Discord API from backing up into the pipeline. Heartbeats are never
// posted.
type Discord struct {
	session   messagePoster
	owned     *discordgo.Session
	channelID string
	log       *slog.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

var _ Sink = (*Discord)(nil)

// DiscordOption configures a [Discord] sink.
type DiscordOption func(*Discord)

// WithDiscordLogger sets the logger. Defaults to [slog.Default].
func WithDiscordLogger(log *slog.Logger) DiscordOption {
	return func(d *Discord) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDiscord connects a bot session and returns a sink posting to channelID.
// The gateway is opened eagerly so a bad token fails at startup, not on the
// first caption.
func NewDiscord(token, channelID string, opts ...DiscordOption) (*Discord, error) {
	if token == "" {
		return nil, errors.New("discord sink: token is required")
	}
	if channelID == "" {
		return nil, errors.New("discord sink: channel id is required")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord sink: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord sink: open session: %w", err)
	}

	d := &Discord{
		session:   session,
		owned:     session,
		channelID: channelID,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Write implements [Sink].
func (d *Discord) Write(c types.Caption) error {
	if c.Kind == types.KindHeartbeat {
		return nil
	}
	if !d.inFlight.CompareAndSwap(false, true) {
		d.log.Debug("discord sink busy, dropping caption", "seq", c.Seq)
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Store(false)
		if _, err := d.session.ChannelMessageSend(d.channelID, c.Text); err != nil {
			d.log.Warn("discord sink send failed", "error", err)
		}
	}()
	return nil
}

// Close implements [Sink]. It waits for an in-flight send, then closes the
// session when the sink opened it.
func (d *Discord) Close() error {
	d.wg.Wait()
	if d.owned == nil {
		return nil
	}
	if err := d.owned.Close(); err != nil {
		return fmt.Errorf("discord sink: close session: %w", err)
	}
	return nil
}
