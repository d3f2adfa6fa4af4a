package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.TargetSizeKB != 500 {
		t.Errorf("TargetSizeKB = %d, want 500", cfg.TargetSizeKB)
	}
	if cfg.OutputFormat != "jpeg" {
		t.Errorf("OutputFormat = %q, want jpeg", cfg.OutputFormat)
	}
	if cfg.MinQuality != 0.3 || cfg.MaxQuality != 0.95 {
		t.Errorf("quality bounds = [%v, %v]", cfg.MinQuality, cfg.MaxQuality)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TARGET_SIZE_KB", "150")
	t.Setenv("TOLERANCE_KB", "5")
	t.Setenv("OUTPUT_FORMAT", "WebP")
	t.Setenv("MIN_SCALE", "0.1")
	t.Setenv("PALETTE_COLORS", "0")
	t.Setenv("LOG_FILE", "/tmp/sizefit.log")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.TargetSizeKB != 150 || cfg.ToleranceKB != 5 {
		t.Errorf("target = %d±%d, want 150±5", cfg.TargetSizeKB, cfg.ToleranceKB)
	}
	if cfg.OutputFormat != "webp" {
		t.Errorf("OutputFormat = %q, want webp", cfg.OutputFormat)
	}
	if cfg.MinScale != 0.1 {
		t.Errorf("MinScale = %v, want 0.1", cfg.MinScale)
	}
	if cfg.PaletteColors != 0 {
		t.Errorf("PaletteColors = %d, want 0", cfg.PaletteColors)
	}
	if cfg.LogFile != "/tmp/sizefit.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("MIN_SCALE", "2")
	t.Setenv("WORKER_COUNT", "-1")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.MinScale != 0.05 {
		t.Errorf("MinScale = %v, want 0.05", cfg.MinScale)
	}
	if cfg.WorkerCount != 10 {
		t.Errorf("WorkerCount = %d, want 10", cfg.WorkerCount)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		check func(*Config) bool
	}{
		{"swaps inverted quality", Config{MinQuality: 0.9, MaxQuality: 0.4}, func(c *Config) bool {
			return c.MinQuality == 0.4 && c.MaxQuality == 0.9
		}},
		{"caps palette", Config{PaletteColors: 1000}, func(c *Config) bool {
			return c.PaletteColors == 256
		}},
		{"negative tolerance", Config{ToleranceKB: -3}, func(c *Config) bool {
			return c.ToleranceKB == 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Validate()
			if !tt.check(&tt.cfg) {
				t.Errorf("unexpected config after Validate: %+v", tt.cfg)
			}
		})
	}
}
