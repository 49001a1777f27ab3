package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"real-tts/internal/audio"
)

// processSynthesizer shells out to a synthesis binary per call: text on
// stdin, WAV written to a temp file. The binary's CLI is the only
// contract; everything behind it is opaque. All fields are fixed at
// construction, so overlapping Synthesize calls are safe.
type processSynthesizer struct {
	binPath   string
	voicePath string
	device    string
	timeout   time.Duration
	tempDir   string
}

func newProcessSynthesizer(binPath, voicePath, device string, timeout time.Duration) (*processSynthesizer, error) {
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("locate synthesis binary: %w", err)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &processSynthesizer{
		binPath:   resolved,
		voicePath: voicePath,
		device:    device,
		timeout:   timeout,
		tempDir:   os.TempDir(),
	}, nil
}

func (p *processSynthesizer) Synthesize(ctx context.Context, text string, params Params) ([]float32, int, error) {
	tmp, err := os.CreateTemp(p.tempDir, "ttsprobe_*.wav")
	if err != nil {
		return nil, 0, fmt.Errorf("create output file: %w", err)
	}
	outputFile := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(outputFile)

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.binPath, p.buildArgs(params, outputFile)...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, 0, fmt.Errorf("synthesis process: %w\nstderr: %s", err, stderr.String())
	}

	data, err := os.ReadFile(outputFile)
	if err != nil {
		return nil, 0, fmt.Errorf("read synthesis output: %w", err)
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode synthesis output: %w", err)
	}
	return samples, rate, nil
}

func (p *processSynthesizer) buildArgs(params Params, outputFile string) []string {
	args := []string{
		"--output_file", outputFile,
		"--device", p.device,
	}
	voice := p.voicePath
	if params.VoicePath != "" {
		voice = params.VoicePath
	}
	if voice != "" {
		args = append(args, "--voice", voice)
	}
	if v := params.Exaggeration; v != nil {
		args = append(args, "--exaggeration", fmt.Sprintf("%.3f", *v))
	}
	if v := params.CFGWeight; v != nil {
		args = append(args, "--cfg_weight", fmt.Sprintf("%.3f", *v))
	}
	if v := params.Temperature; v != nil {
		args = append(args, "--temperature", fmt.Sprintf("%.3f", *v))
	}
	return args
}

// Components names the backend's moving parts for the load check.
func (p *processSynthesizer) Components() map[string]string {
	out := map[string]string{
		"backend": filepath.Base(p.binPath),
		"device":  p.device,
	}
	if p.voicePath != "" {
		out["voice"] = filepath.Base(p.voicePath)
	}
	return out
}

func (p *processSynthesizer) Close() error {
	return nil
}
