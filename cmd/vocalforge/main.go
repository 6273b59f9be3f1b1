package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/loqalabs/vocalforge/internal/audio"
	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/bus"
	"github.com/loqalabs/vocalforge/internal/codec"
	"github.com/loqalabs/vocalforge/internal/config"
	"github.com/loqalabs/vocalforge/internal/protocol"
	"github.com/loqalabs/vocalforge/internal/speech"
	"github.com/loqalabs/vocalforge/internal/voices"
)

var version = "0.1.0-dev"

type speakOptions struct {
	configPath string
	text       string
	voice      string
	language   string
	reference  string
	out        string
	overBus    bool
}

func main() {
	var opts speakOptions
	speakCmd := flag.NewFlagSet("speak", flag.ExitOnError)
	speakCmd.StringVar(&opts.configPath, "config", "vocalforge.yaml", "Path to configuration file")
	speakCmd.StringVar(&opts.text, "text", "", "Text to speak")
	speakCmd.StringVar(&opts.voice, "voice", "Kore", "Prebuilt voice")
	speakCmd.StringVar(&opts.language, "language", voices.AutoLanguage, "Output language")
	speakCmd.StringVar(&opts.reference, "ref", "", "Reference recording for voice cloning")
	speakCmd.StringVar(&opts.out, "out", "speech.wav", "Output WAV file")
	speakCmd.BoolVar(&opts.overBus, "bus", false, "Send the request to a daemon over NATS")

	var inspectPath string
	inspectCmd := flag.NewFlagSet("inspect", flag.ExitOnError)
	inspectCmd.StringVar(&inspectPath, "file", "", "WAV file to inspect")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'speak', 'inspect', 'voices' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "speak":
		speakCmd.Parse(os.Args[2:])
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := runSpeak(ctx, opts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", opts.out)
	case "inspect":
		inspectCmd.Parse(os.Args[2:])
		if err := runInspect(inspectPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "voices":
		for _, v := range voices.Prebuilt() {
			fmt.Printf("%-8s %-7s %s\n", v.Name, v.Gender, v.Description)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

// validate rejects flag combinations before any config or network work.
func (o speakOptions) validate() error {
	if strings.TrimSpace(o.text) == "" {
		return errors.New("-text is required")
	}
	if o.reference == "" {
		if _, ok := voices.Lookup(o.voice); !ok {
			return fmt.Errorf("unknown voice %q (run 'vocalforge voices' for the list)", o.voice)
		}
	}
	if !voices.ValidLanguage(o.language) {
		return fmt.Errorf("unknown language %q", o.language)
	}
	return nil
}

func runSpeak(ctx context.Context, opts speakOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var ref *blob.Blob
	if opts.reference != "" {
		data, err := os.ReadFile(opts.reference)
		if err != nil {
			return fmt.Errorf("read reference: %w", err)
		}
		mime := audio.MIMEType
		if !strings.EqualFold(filepath.Ext(opts.reference), ".wav") {
			mime = http.DetectContentType(data)
		}
		ref = blob.New(data, mime)
	}

	var wav []byte
	if opts.overBus {
		wav, err = speakOverBus(ctx, cfg, opts, ref, logger)
	} else {
		wav, err = speakLocally(ctx, cfg, opts, ref, logger)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(opts.out, wav, 0o644)
}

func speakLocally(ctx context.Context, cfg config.Config, opts speakOptions, ref *blob.Blob, logger *slog.Logger) ([]byte, error) {
	client, err := speech.Default(cfg.Speech, logger)
	if err != nil {
		return nil, err
	}
	res, err := client.Synthesize(ctx, speech.Request{
		Text:      opts.text,
		Voice:     opts.voice,
		Language:  opts.language,
		Reference: ref,
	})
	if err != nil {
		return nil, fmt.Errorf("%s (%w)", speech.UserMessage(err), err)
	}
	return res.Audio.Bytes(), nil
}

func speakOverBus(ctx context.Context, cfg config.Config, opts speakOptions, ref *blob.Blob, logger *slog.Logger) ([]byte, error) {
	cfg.Bus.Enabled = true
	client, err := bus.Connect(ctx, cfg.Bus, logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	req := protocol.SpeechRequest{
		Text:     opts.text,
		Voice:    opts.voice,
		Language: opts.language,
	}
	if ref != nil {
		req.ReferenceWAV = codec.EncodeBase64(ref.Bytes())
		req.ReferenceMIME = ref.MIMEType()
	}
	var reply protocol.SpeechReply
	if err := client.RequestJSON(ctx, protocol.SubjectSpeechRequest, req, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%s: %s", reply.ErrorKind, reply.Error)
	}
	return codec.DecodeBase64(reply.WAVBase64)
}

func runInspect(path string) error {
	if path == "" {
		return errors.New("-file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := audio.Inspect(f)
	if err != nil {
		return err
	}
	fmt.Printf("sample_rate=%d channels=%d bit_depth=%d duration=%s\n", info.SampleRate, info.Channels, info.BitDepth, info.Duration)
	return nil
}
