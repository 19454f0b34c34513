package stt

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
	"github.com/mattn/go-shellwords"
)

// execRecognizer runs an external recognizer process per request. The
// process prints the transcript JSON on stdout. Calls are serialized since
// the process usually owns the GPU.
type execRecognizer struct {
	cmd []string
	cfg config.STTConfig
	mu  sync.Mutex
}

func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, req Request) (*transcript.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.cmd[0]
	cmdArgs := append(append([]string{}, r.cmd[1:]...), buildArgs(r.cfg, req)...)

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	result, err := transcript.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode stt response: %w", err)
	}
	return result, nil
}

// buildArgs turns a request into recognizer flags. Unset options are left
// to the recognizer's own defaults.
func buildArgs(cfg config.STTConfig, req Request) []string {
	args := []string{"--audio", req.AudioPath}
	add := func(flag, value string) {
		if value != "" {
			args = append(args, flag, value)
		}
	}
	addInt := func(flag string, value int) {
		if value > 0 {
			args = append(args, flag, strconv.Itoa(value))
		}
	}

	add("--model", req.Model)
	add("--language", req.Language)
	add("--task", string(req.Task))
	add("--compute_type", cfg.ComputeType)
	add("--initial_prompt", req.Prompt)
	if req.Temperature > 0 {
		args = append(args, "--temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64))
	}
	addInt("--batch_size", req.BatchSize)
	addInt("--chunk_size", req.ChunkSize)
	if req.Diarize {
		args = append(args, "--diarize")
		addInt("--min_speakers", req.MinSpeakers)
		addInt("--max_speakers", req.MaxSpeakers)
	}
	if !req.Align {
		args = append(args, "--no_align")
	}
	if req.HighlightWords {
		args = append(args, "--highlight_words", "True")
	}
	if req.SuppressNumerals {
		args = append(args, "--suppress_numerals")
	}
	add("--hotwords", req.Hotwords)
	return args
}
