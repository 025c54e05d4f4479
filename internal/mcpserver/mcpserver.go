// Package mcpserver exposes the captioning service's speaker profiles and
// caption journal to MCP clients over stdio, using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// The server is read-only: tools list profiles, match a recording against
// them, and tail recent captions. Nothing mutates service state, so an
// assistant wired to it can inspect a capture setup without being able to
// break it.
//
// Typical usage:
//
//	srv := mcpserver.New(store, jrnl,
//	    mcpserver.WithLogger(log),
//	    mcpserver.WithVersion("1.2.0"),
//	)
//	if err := srv.Run(ctx); err != nil {
//	    // client disconnected or transport failed
//	}
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dominicskywalkr/VAICCS-sub000/internal/journal"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/audio"
	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
)

// DefaultTopK is how many match candidates profiles_match returns when the
// caller does not ask for a specific number.
const DefaultTopK = 3

// DefaultTailCount is how many captions captions_tail returns when the
// caller does not ask for a specific number.
const DefaultTailCount = 10

// Server serves the read-only MCP tool set. Create instances with [New];
// the zero value is not usable.
type Server struct {
	store   profile.Store
	jrnl    *journal.Journal
	topK    int
	version string
	log     *slog.Logger

	srv *mcpsdk.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Nil values are ignored.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTopK sets the default candidate count for profiles_match. Non-positive
// values are ignored.
func WithTopK(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.topK = n
		}
	}
}

// WithVersion sets the version reported in the MCP handshake.
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// New creates a server exposing store and jrnl. Either may be nil; the
// corresponding tools then return tool errors instead of data, so a caption
// service running without a journal still serves profile tools.
func New(store profile.Store, jrnl *journal.Journal, opts ...Option) *Server {
	s := &Server{
		store:   store,
		jrnl:    jrnl,
		topK:    DefaultTopK,
		version: "dev",
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "vaiccs", Version: s.version}, nil)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "profiles_list",
		Description: "List the enrolled speaker profiles with their enrollment recording counts.",
	}, s.listProfiles)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "profiles_match",
		Description: "Identify the speaker in a WAV recording by matching it against the enrolled profiles.",
	}, s.matchProfiles)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "captions_tail",
		Description: "Return the most recent captions from the caption journal.",
	}, s.tailCaptions)

	return s
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server listening on stdio",
		"tools", []string{"profiles_list", "profiles_match", "captions_tail"},
	)
	return s.run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) run(ctx context.Context, t mcpsdk.Transport) error {
	if err := s.srv.Run(ctx, t); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// ── tool payloads ────────────────────────────────────────────────────────────

type listProfilesInput struct{}

type profileSummary struct {
	Name      string `json:"name"`
	Sources   int    `json:"sources"`
	CreatedAt string `json:"created_at"`
}

type listProfilesOutput struct {
	Profiles []profileSummary `json:"profiles"`
}

type matchInput struct {
	Path string `json:"path" jsonschema:"path to a PCM16 WAV recording of the speaker to identify"`
	TopK int    `json:"top_k,omitempty" jsonschema:"how many candidates to return, best first"`
}

type matchEntry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type matchOutput struct {
	Matches []matchEntry `json:"matches"`
}

type tailInput struct {
	Count int `json:"count,omitempty" jsonschema:"how many of the most recent captions to return"`
}

type captionEntry struct {
	Seq  int64  `json:"seq"`
	Time string `json:"time"`
	Text string `json:"text"`
}

type tailOutput struct {
	Captions []captionEntry `json:"captions"`
}

// ── tool handlers ────────────────────────────────────────────────────────────

func (s *Server) listProfiles(ctx context.Context, _ *mcpsdk.CallToolRequest, _ listProfilesInput) (*mcpsdk.CallToolResult, listProfilesOutput, error) {
	if s.store == nil {
		return nil, listProfilesOutput{}, errors.New("no profile store configured")
	}
	profiles, err := s.store.List(ctx)
	if err != nil {
		return nil, listProfilesOutput{}, fmt.Errorf("list profiles: %w", err)
	}

	out := listProfilesOutput{Profiles: make([]profileSummary, 0, len(profiles))}
	for _, p := range profiles {
		out.Profiles = append(out.Profiles, profileSummary{
			Name:      p.Name,
			Sources:   len(p.SourceFiles),
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func (s *Server) matchProfiles(ctx context.Context, _ *mcpsdk.CallToolRequest, in matchInput) (*mcpsdk.CallToolResult, matchOutput, error) {
	if s.store == nil {
		return nil, matchOutput{}, errors.New("no profile store configured")
	}
	if in.Path == "" {
		return nil, matchOutput{}, errors.New("path is required")
	}

	pcm, rate, channels, err := audio.ReadWAVFile(in.Path)
	if err != nil {
		return nil, matchOutput{}, fmt.Errorf("read recording: %w", err)
	}
	if channels > 1 {
		pcm = audio.DownmixMono(pcm, channels)
	}

	topK := in.TopK
	if topK <= 0 {
		topK = s.topK
	}
	matches, err := s.store.Match(ctx, audio.Float64Samples(pcm), rate, topK)
	if err != nil {
		return nil, matchOutput{}, fmt.Errorf("match recording: %w", err)
	}

	out := matchOutput{Matches: make([]matchEntry, 0, len(matches))}
	for _, m := range matches {
		out.Matches = append(out.Matches, matchEntry{Name: m.Name, Score: m.Score})
	}
	return nil, out, nil
}

func (s *Server) tailCaptions(_ context.Context, _ *mcpsdk.CallToolRequest, in tailInput) (*mcpsdk.CallToolResult, tailOutput, error) {
	if s.jrnl == nil {
		return nil, tailOutput{}, errors.New("no caption journal configured")
	}

	count := in.Count
	if count <= 0 {
		count = DefaultTailCount
	}
	captions, err := s.jrnl.Tail(count)
	if err != nil {
		return nil, tailOutput{}, fmt.Errorf("tail captions: %w", err)
	}

	out := tailOutput{Captions: make([]captionEntry, 0, len(captions))}
	for _, c := range captions {
		out.Captions = append(out.Captions, captionEntry{
			Seq:  c.Seq,
			Time: c.Start.UTC().Format(time.RFC3339),
			Text: c.Text,
		})
	}
	return nil, out, nil
}
