package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/vocalforge/internal/blob"
	"github.com/loqalabs/vocalforge/internal/bus"
	"github.com/loqalabs/vocalforge/internal/codec"
	"github.com/loqalabs/vocalforge/internal/protocol"
)

// Service answers speech.request messages on the bus with a SpeechReply.
type Service struct {
	enabled bool
	bus     *bus.Client
	client  *Client
	sub     *nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewService(parent context.Context, enabled bool, busClient *bus.Client, client *Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		enabled: enabled,
		bus:     busClient,
		client:  client,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.With(slog.String("component", "speech-service")),
	}
}

func (s *Service) Start() error {
	if !s.enabled {
		return nil
	}
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectSpeechRequest, "vocalforge-speech", s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeechRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speech request", slogError(err))
		s.reply(msg, protocol.SpeechReply{ErrorKind: string(KindMalformed), Error: "invalid request payload"})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		speechReq := Request{Text: req.Text, Voice: req.Voice, Language: req.Language}
		if req.ReferenceWAV != "" {
			data, err := codec.DecodeBase64(req.ReferenceWAV)
			if err != nil {
				s.reply(msg, protocol.SpeechReply{RequestID: req.RequestID, ErrorKind: string(KindMalformed), Error: "reference sample is not valid base64"})
				return
			}
			speechReq.Reference = blob.New(data, referenceMIME(req.ReferenceMIME, data))
		}

		result, err := s.client.Synthesize(s.ctx, speechReq)
		if err != nil {
			s.reply(msg, protocol.SpeechReply{RequestID: req.RequestID, ErrorKind: string(KindOf(err)), Error: UserMessage(err)})
			return
		}
		s.reply(msg, protocol.SpeechReply{
			RequestID: req.RequestID,
			WAVBase64: codec.EncodeBase64(result.Audio.Bytes()),
			Frames:    result.Sample.FrameCount(),
		})
	}()
}

func (s *Service) reply(msg *nats.Msg, reply protocol.SpeechReply) {
	if msg.Reply == "" {
		return
	}
	reply.Timestamp = time.Now().UTC()
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal speech reply", slogError(err))
		return
	}
	err = msg.Respond(data)
	if errors.Is(err, nats.ErrMaxPayload) && reply.Error == "" {
		s.logger.Warn("speech reply exceeds bus payload limit", slog.Int("bytes", len(data)), slog.String("request_id", reply.RequestID))
		s.reply(msg, protocol.SpeechReply{
			RequestID: reply.RequestID,
			ErrorKind: protocol.ErrorKindPayloadTooLarge,
			Error:     fmt.Sprintf("generated audio is %d bytes encoded, larger than the bus accepts", len(data)),
		})
		return
	}
	if err != nil {
		s.logger.Warn("failed to publish speech reply", slogError(err))
	}
}

// referenceMIME prefers the declared type and otherwise sniffs data.
func referenceMIME(declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	return http.DetectContentType(data)
}
