package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/vocalforge/internal/codec"
)

// Exec runs a local command per request. The command receives one JSON
// object on stdin and answers with JSON lines carrying base64 PCM chunks.
type Exec struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text            string `json:"text"`
	Voice           string `json:"voice"`
	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	ReferenceBase64 string `json:"reference_base64,omitempty"`
	ReferenceMIME   string `json:"reference_mime,omitempty"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final,omitempty"`
}

func NewExec(command string, sampleRate, channels int) (*Exec, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("speech command empty")
	}
	return &Exec{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

// Generate runs the command once; concurrent calls are serialized.
func (e *Exec) Generate(ctx context.Context, p Prompt) (*Response, error) {
	const op = "exec generate"
	e.mu.Lock()
	defer e.mu.Unlock()

	reqPayload := execRequest{
		Voice:      p.Voice,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	}
	var texts []string
	for _, part := range p.Parts {
		if part.InlineData != nil {
			reqPayload.ReferenceBase64 = part.InlineData.Data
			reqPayload.ReferenceMIME = part.InlineData.MIMEType
			continue
		}
		texts = append(texts, part.Text)
	}
	reqPayload.Text = strings.Join(texts, "\n")
	data, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, newError(KindConfiguration, op, "attach stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, newError(KindConfiguration, op, "start command", err)
	}

	var pcm []byte
	var lineErr error
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			lineErr = newError(KindMalformed, op, "decode output line", err)
			break
		}
		chunk, err := codec.DecodeBase64(resp.PCMBase64)
		if err != nil {
			lineErr = newError(KindMalformed, op, "decode pcm chunk", err)
			break
		}
		pcm = append(pcm, chunk...)
	}
	if lineErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, lineErr
	}
	scanErr := scanner.Err()
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newError(KindTransient, op, "command failed: "+strings.TrimSpace(stderr.String()), err)
	}
	if scanErr != nil {
		return nil, newError(KindTransient, op, "read output", scanErr)
	}
	if len(pcm) == 0 {
		return &Response{}, nil
	}
	mime := fmt.Sprintf("audio/L16;rate=%d", e.sampleRate)
	return &Response{Parts: []Part{{InlineData: &InlineData{MIMEType: mime, Data: codec.EncodeBase64(pcm)}}}}, nil
}
