package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harliandi/sizefit/internal/codec"
)

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 150))
	seed := uint32(7)
	for y := 0; y < 150; y++ {
		for x := 0; x < 200; x++ {
			seed = seed*1664525 + 1013904223
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(seed >> 24), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	path := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
		output string
		want   codec.Format
		err    bool
	}{
		{"default", "", "", codec.JPEG, false},
		{"from extension", "", "out.png", codec.PNG, false},
		{"flag wins", "webp", "out.png", codec.WebP, false},
		{"unknown extension", "", "out.bmp", codec.JPEG, false},
		{"bad flag", "gif", "", codec.JPEG, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := outputFormat(&options{format: tt.format, output: tt.output})
			if tt.err {
				assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "dir/photo-sized.jpg", outputPath("dir/photo.heic", codec.JPEG))
	assert.Equal(t, "scan-sized.png", outputPath("scan.png", codec.PNG))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir)
	output := filepath.Join(dir, "small.jpg")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &options{
		input:    input,
		output:   output,
		targetKB: 8,
		kernel:   "catmullrom",
		logLevel: "error",
	}, &stdout, &stderr)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), 8*1024)
	assert.Contains(t, stdout.String(), output)

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestRun_DefaultOutputPath(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &options{
		input:    input,
		targetKB: 50,
		format:   "png",
		mode:     "stretch",
		width:    40,
		height:   30,
		logLevel: "error",
		quiet:    true,
	}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, stderr.String())

	data, err := os.ReadFile(filepath.Join(dir, "photo-sized.png"))
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir)

	tests := []struct {
		name string
		opts options
	}{
		{"zero target", options{input: input}},
		{"bad quality", options{input: input, targetKB: 10, quality: 2}},
		{"bad format", options{input: input, targetKB: 10, format: "tiff"}},
		{"bad mode", options{input: input, targetKB: 10, mode: "zoom"}},
		{"bad kernel", options{input: input, targetKB: 10, kernel: "sinc"}},
		{"missing input", options{input: filepath.Join(dir, "nope.jpg"), targetKB: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.logLevel = "error"
			tt.opts.quiet = true
			var stdout, stderr bytes.Buffer
			assert.Error(t, run(context.Background(), &tt.opts, &stdout, &stderr))
		})
	}
}

func TestRootCmd_RequiresInput(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--target", "10"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	assert.Error(t, cmd.Execute())
}

func TestRootCmd_Execute(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir)
	output := filepath.Join(dir, "out.webp")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"-i", input, "-o", output, "--target", "20", "--quiet", "--log-level", "error"})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	kind, _ := codec.Detect(data)
	// webp may fall back to jpeg where the encoder is unavailable
	assert.Contains(t, []string{"webp", "jpeg"}, kind)
}

func TestRootCmd_ToleranceIsSymmetric(t *testing.T) {
	flag := newRootCmd().Flags().Lookup("tolerance")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "deviation")
	assert.NotContains(t, flag.Usage, "below")
}
