package main

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/speakcheck/internal/config"
	"github.com/MrWong99/speakcheck/internal/resilience"
	"github.com/MrWong99/speakcheck/pkg/audio"
	audiomock "github.com/MrWong99/speakcheck/pkg/audio/mock"
	"github.com/MrWong99/speakcheck/pkg/provider/stt"
	sttmock "github.com/MrWong99/speakcheck/pkg/provider/stt/mock"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, want := range config.ValidProviderNames {
		got := reg.Names(kind)
		for _, name := range want {
			if !slices.Contains(got, name) {
				t.Errorf("%s %q not registered (have %v)", kind, name, got)
			}
		}
	}
}

func TestRegisterBuiltinProviders_CommandSourceParsesArgs(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	_, err := reg.CreateSource(config.ProviderEntry{Name: "command", Command: `rec "unterminated`})
	if err == nil {
		t.Error("expected an error for an unbalanced quote")
	}
}

func mockRegistry(engines map[string]*sttmock.Engine) *config.Registry {
	reg := config.NewRegistry()
	for name, eng := range engines {
		reg.RegisterEngine(name, func(config.ProviderEntry) (stt.Engine, error) { return eng, nil })
	}
	reg.RegisterEngine("broken", func(config.ProviderEntry) (stt.Engine, error) {
		return nil, errors.New("model missing")
	})
	reg.RegisterSource("mock", func(config.ProviderEntry) (config.SourceOpener, error) {
		return func(context.Context) (audio.Source, error) { return &audiomock.Source{}, nil }, nil
	})
	return reg
}

func TestBuildProviders_SingleEngine(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Engine{}
	reg := mockRegistry(map[string]*sttmock.Engine{"primary": primary})

	cfg := config.Default()
	cfg.Engine = config.ProviderEntry{Name: "primary"}
	cfg.Audio.Source = config.ProviderEntry{Name: "mock"}

	p, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if p.Engine != stt.Engine(primary) {
		t.Errorf("engine = %T, want the primary engine unwrapped", p.Engine)
	}
	if _, err := p.Open(context.Background()); err != nil {
		t.Errorf("Open: %v", err)
	}
}

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Engine{Err: errors.New("down")}
	backup := &sttmock.Engine{DefaultText: "from backup"}
	reg := mockRegistry(map[string]*sttmock.Engine{"primary": primary, "backup": backup})

	cfg := config.Default()
	cfg.Engine = config.ProviderEntry{Name: "primary"}
	cfg.Fallbacks = []config.ProviderEntry{{Name: "backup"}}
	cfg.Audio.Source = config.ProviderEntry{Name: "mock"}

	p, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	chain, ok := p.Engine.(*resilience.Engine)
	if !ok {
		t.Fatalf("engine = %T, want *resilience.Engine", p.Engine)
	}
	if got := chain.Names(); !slices.Equal(got, []string{"primary", "backup#1"}) {
		t.Errorf("order = %v", got)
	}
	text, err := chain.Transcribe(context.Background(), []float32{0})
	if err != nil || text != "from backup" {
		t.Errorf("Transcribe = %q, %v; want from backup", text, err)
	}
}

func TestBuildProviders_FallbackErrorClosesEngines(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Engine{}
	reg := mockRegistry(map[string]*sttmock.Engine{"primary": primary})

	cfg := config.Default()
	cfg.Engine = config.ProviderEntry{Name: "primary"}
	cfg.Fallbacks = []config.ProviderEntry{{Name: "broken"}}
	cfg.Audio.Source = config.ProviderEntry{Name: "mock"}

	if _, err := buildProviders(cfg, reg); err == nil {
		t.Fatal("expected an error for the broken fallback")
	}
	if primary.CloseCount != 1 {
		t.Errorf("primary closed %d times, want 1", primary.CloseCount)
	}
}

func TestBuildProviders_UnknownSource(t *testing.T) {
	t.Parallel()
	reg := mockRegistry(nil)
	cfg := config.Default()
	cfg.Audio.Source = config.ProviderEntry{Name: "nope"}

	if _, err := buildProviders(cfg, reg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
