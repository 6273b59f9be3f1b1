// Package studio drives speech generation for the single studio session:
// it validates input, keeps one request in flight, records results in the
// history and reports progress to subscribers.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/bus"
	"github.com/loqalabs/vocalforge/internal/config"
	"github.com/loqalabs/vocalforge/internal/history"
	"github.com/loqalabs/vocalforge/internal/protocol"
	"github.com/loqalabs/vocalforge/internal/speech"
	"github.com/loqalabs/vocalforge/internal/voices"
)

var (
	// ErrValidation wraps every input error detected before a request is
	// sent.
	ErrValidation = errors.New("invalid input")
	// ErrSuperseded is returned to a caller whose request was replaced by a
	// newer one before it completed.
	ErrSuperseded = errors.New("generation superseded by a newer request")
)

// Mode selects prebuilt voices or the cloning simulation.
type Mode string

const (
	ModePrebuilt Mode = "prebuilt"
	ModeCloning  Mode = "cloning"
)

const (
	StateIdle       = "idle"
	StateGenerating = "generating"
	StateError      = "error"
)

// Input is one generation request.
type Input struct {
	Text      string `json:"text"`
	Mode      Mode   `json:"mode"`
	VoiceID   string `json:"voiceId"`
	ProfileID string `json:"profileId"`
	Language  string `json:"language"`
}

// Synthesizer is the part of speech.Client the studio needs.
type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.Request) (*speech.Result, error)
}

type Studio struct {
	synth    Synthesizer
	history  *history.Store
	profiles *voices.Profiles
	urls     *blob.URLRegistry
	bus      *bus.Client
	cfg      config.StudioConfig
	logger   *slog.Logger
	events   *fanout

	mu       sync.Mutex
	token    uint64
	inflight context.CancelFunc
	status   protocol.StudioStatus

	previewMu sync.Mutex
	previews  map[string]*time.Timer
}

// New wires a studio. busClient may be nil.
func New(cfg config.StudioConfig, synth Synthesizer, store *history.Store, profiles *voices.Profiles, urls *blob.URLRegistry, busClient *bus.Client, logger *slog.Logger) *Studio {
	return &Studio{
		synth:    synth,
		history:  store,
		profiles: profiles,
		urls:     urls,
		bus:      busClient,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "studio")),
		events:   newFanout(),
		status:   protocol.StudioStatus{State: StateIdle, Timestamp: time.Now().UTC()},
		previews: make(map[string]*time.Timer),
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription.
func (s *Studio) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// Status returns the current generation status.
func (s *Studio) Status() protocol.StudioStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type plan struct {
	req      speech.Request
	label    string
	language string
	cloned   bool
}

func (s *Studio) resolve(in Input) (plan, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return plan{}, validationError("text must not be empty")
	}
	if !voices.ValidLanguage(in.Language) {
		return plan{}, validationError("unsupported language %q", in.Language)
	}
	language := history.DefaultLanguage
	if !speech.IsAutoLanguage(in.Language) {
		language = in.Language
	}

	switch in.Mode {
	case ModeCloning:
		id := in.ProfileID
		if id == "" {
			id = s.profiles.Selected()
		}
		if id == "" {
			return plan{}, validationError("select a custom voice before generating")
		}
		prof, err := s.profiles.Get(id)
		if err != nil {
			return plan{}, validationError("custom voice %q does not exist", id)
		}
		return plan{
			req:      speech.Request{Text: text, Language: in.Language, Reference: prof.Reference},
			label:    prof.Name,
			language: language,
			cloned:   true,
		}, nil
	case ModePrebuilt, "":
		id := in.VoiceID
		if id == "" {
			id = s.cfg.DefaultVoice
		}
		v, ok := voices.Lookup(id)
		if !ok {
			return plan{}, validationError("unknown voice %q", id)
		}
		return plan{
			req:      speech.Request{Text: text, Voice: v.ID, Language: in.Language},
			label:    v.Name,
			language: language,
		}, nil
	default:
		return plan{}, validationError("unknown mode %q", in.Mode)
	}
}

// Generate synthesizes in and records the result at the head of the history.
// Starting a new generation cancels the one in flight; the earlier caller
// then receives ErrSuperseded and its result, if any, is dropped.
func (s *Studio) Generate(ctx context.Context, in Input) (history.Record, error) {
	p, err := s.resolve(in)
	if err != nil {
		return history.Record{}, err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.inflight != nil {
		s.inflight()
	}
	s.token++
	token := s.token
	s.inflight = cancel
	s.setStatusLocked(StateGenerating, "")
	s.mu.Unlock()

	s.logger.Info("generation started", slog.Uint64("token", token), slog.String("voice", p.label), slog.Bool("cloned", p.cloned))
	result, err := s.synth.Synthesize(reqCtx, p.req)

	s.mu.Lock()
	if token != s.token {
		s.mu.Unlock()
		s.logger.Info("dropping superseded generation", slog.Uint64("token", token))
		return history.Record{}, ErrSuperseded
	}
	s.inflight = nil

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.setStatusLocked(StateIdle, "")
		} else {
			s.setStatusLocked(StateError, speech.UserMessage(err))
		}
		s.mu.Unlock()
		return history.Record{}, err
	}

	rec := s.history.Add(history.Record{
		Text:       p.req.Text,
		VoiceLabel: p.label,
		Audio:      result.Audio,
		IsCloned:   p.cloned,
		Language:   p.language,
	})
	s.setStatusLocked(StateIdle, "")
	s.mu.Unlock()

	// The store write encodes every persisted entry; it runs outside s.mu.
	s.history.Persist(ctx)
	s.emitHistory("inserted", rec.ID)
	return rec, nil
}

// setStatusLocked records and announces a new status. Callers hold s.mu.
func (s *Studio) setStatusLocked(state, message string) {
	s.status = protocol.StudioStatus{State: state, Message: message, Token: s.token, Timestamp: time.Now().UTC()}
	status := s.status
	s.events.publish(Event{Type: EventStatus, Status: &status})
	if err := s.bus.PublishJSON(protocol.SubjectStudioStatus, status); err != nil {
		s.logger.Warn("failed to publish status", slogError(err))
	}
}

func (s *Studio) emitHistory(action, id string) {
	evt := protocol.HistoryEvent{Action: action, ID: id, Count: s.history.Len(), Timestamp: time.Now().UTC()}
	s.events.publish(Event{Type: EventHistory, History: &evt})
	if err := s.bus.PublishJSON(protocol.SubjectStudioHistory, evt); err != nil {
		s.logger.Warn("failed to publish history event", slogError(err))
	}
}

// DeleteRecord removes one history record. Unknown ids are ignored.
func (s *Studio) DeleteRecord(ctx context.Context, id string) bool {
	if !s.history.Delete(ctx, id) {
		return false
	}
	s.emitHistory("deleted", id)
	return true
}

// ClearHistory removes every history record.
func (s *Studio) ClearHistory(ctx context.Context) {
	s.history.Clear(ctx)
	s.emitHistory("cleared", "")
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
