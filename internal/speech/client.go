package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/vocalforge/internal/audio"
	"github.com/loqalabs/vocalforge/internal/codec"
	"github.com/loqalabs/vocalforge/internal/config"
)

const instrumentationName = "github.com/loqalabs/vocalforge/internal/speech"

// Client runs one synthesis request at a time through a Synthesizer and turns
// the returned PCM into a WAV blob. Failures are returned to the caller
// without retrying.
type Client struct {
	synth      Synthesizer
	credErr    error
	cloneVoice string
	sampleRate int
	channels   int
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	state    State
	observer func(State)

	tracer   trace.Tracer
	requests metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewClient wraps synth. The credential check from cfg is applied to every
// request so that a missing key surfaces as a configuration failure instead
// of a transport one.
func NewClient(cfg config.SpeechConfig, synth Synthesizer, logger *slog.Logger) *Client {
	c := &Client{
		synth:      synth,
		credErr:    cfg.CredentialError(),
		cloneVoice: cfg.CloneVoice,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		timeout:    cfg.Timeout(),
		logger:     logger.With(slog.String("component", "speech-client")),
		state:      StateIdle,
		tracer:     otel.Tracer(instrumentationName),
	}
	if c.sampleRate <= 0 {
		c.sampleRate = 24000
	}
	if c.channels <= 0 {
		c.channels = 1
	}
	if err := c.initMetrics(); err != nil {
		c.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return c
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	var err error
	if c.requests, err = meter.Int64Counter("vocalforge.speech.requests", metric.WithDescription("Synthesis requests sent")); err != nil {
		return err
	}
	if c.failures, err = meter.Int64Counter("vocalforge.speech.failures", metric.WithDescription("Synthesis requests that failed")); err != nil {
		return err
	}
	c.latency, err = meter.Float64Histogram("vocalforge.speech.latency_ms", metric.WithDescription("Synthesis latency"), metric.WithUnit("ms"))
	return err
}

// Observe registers fn to receive every state transition.
func (c *Client) Observe(fn func(State)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

// State returns the state of the most recent request.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Synthesize sends req and returns a WAV result.
func (c *Client) Synthesize(ctx context.Context, req Request) (*Result, error) {
	const op = "synthesize"
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, newError(KindValidation, op, "text must not be empty", nil)
	}
	if c.credErr != nil {
		return nil, newError(KindConfiguration, op, "missing credential", c.credErr)
	}

	ctx, span := c.tracer.Start(ctx, "speech.synthesize", trace.WithAttributes(
		attribute.String("speech.voice", req.Voice),
		attribute.Bool("speech.cloned", req.Reference != nil),
	))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.setState(StateRequesting)
	start := time.Now()
	result, err := c.run(ctx, req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	attrs := metric.WithAttributes(attribute.Bool("cloned", req.Reference != nil))
	if c.requests != nil {
		c.requests.Add(ctx, 1, attrs)
		c.latency.Record(ctx, elapsed, attrs)
	}
	if err != nil {
		if c.failures != nil {
			c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(KindOf(err)))))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("speech synthesis failed", slog.String("voice", req.Voice), slogError(err))
		c.setState(StateFailed)
		return nil, err
	}
	span.SetAttributes(attribute.Int("speech.frames", result.Sample.FrameCount()))
	c.setState(StateSucceeded)
	return result, nil
}

func (c *Client) run(ctx context.Context, req Request) (*Result, error) {
	const op = "synthesize"
	prompt, err := BuildPrompt(ctx, req, c.cloneVoice)
	if err != nil {
		return nil, newError(KindMalformed, op, "build prompt", err)
	}
	resp, err := c.synth.Generate(ctx, prompt)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(KindTransient, op, "request timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, newError(KindTransient, op, "backend request failed", err)
	}

	data := firstInlineAudio(resp)
	if data == nil {
		msg := "response contained no audio part"
		if resp != nil && resp.FinishReason != "" && resp.FinishReason != "STOP" {
			msg = fmt.Sprintf("response contained no audio part (finish reason %s)", resp.FinishReason)
		}
		return nil, newError(KindContent, op, msg, ErrMissingAudio)
	}

	pcm, err := codec.DecodeBase64(data.Data)
	if err != nil {
		return nil, newError(KindMalformed, op, "decode audio payload", err)
	}
	sample, err := audio.DecodePCM16(pcm, c.sampleRate, c.channels)
	if err != nil {
		return nil, newError(KindMalformed, op, "decode pcm", err)
	}
	wav, err := audio.EncodeWAV(sample, sample.FrameCount())
	if err != nil {
		return nil, newError(KindMalformed, op, "encode wav", err)
	}
	return &Result{Audio: wav, Sample: sample, Voice: prompt.Voice}, nil
}

func firstInlineAudio(resp *Response) *InlineData {
	if resp == nil {
		return nil
	}
	for _, part := range resp.Parts {
		if part.InlineData != nil {
			if part.InlineData.Data == "" {
				return nil
			}
			return part.InlineData
		}
	}
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
