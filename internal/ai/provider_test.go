package ai_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/ai"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/store"
)

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   bool
	systems []string
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.mu.Lock()
	g.systems = append(g.systems, system)
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, g.err
}

type countingFactory struct {
	gen   ai.Generator
	err   error
	calls int
}

func (f *countingFactory) build(_ context.Context, _ model.AIConfig) (ai.Generator, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.gen, nil
}

var (
	testCV = model.CVData{
		ID:           "cv-1",
		PersonalInfo: map[string]any{"name": "Ana Pérez"},
		RawText:      "Desarrolladora backend con experiencia en go y postgres",
		Skills:       []string{"go", "postgres"},
	}
	testPosting = model.JobPosting{
		Title:       "Backend Developer",
		Company:     "Acme SpA",
		Description: "Buscamos experiencia en go y kubernetes",
	}
)

func newService(t *testing.T, cfg *model.AIConfig, f *countingFactory, timeout time.Duration) *ai.Service {
	t.Helper()
	st := store.NewMemory()
	if cfg != nil {
		cfg.UserID = "u1"
		require.NoError(t, st.SaveAIConfig(context.Background(), cfg))
	}
	return ai.NewService(st, f.build, timeout, logger.NewTest(t))
}

func allOn() *model.AIConfig {
	return &model.AIConfig{
		APIKey:                 "key",
		PersonalizationEnabled: true,
		AutoCoverLetter:        true,
		AutoFormFill:           true,
		ResponseStyle:          model.StyleFriendly,
	}
}

func TestService_NoConfigFallsBack(t *testing.T) {
	f := &countingFactory{gen: &fakeGenerator{reply: "unused"}}
	svc := newService(t, nil, f, time.Second)
	ctx := context.Background()

	assert.Equal(t, testCV.RawText, svc.PersonalizeCV(ctx, "u1", testCV, testPosting))
	assert.Equal(t, ai.FallbackCoverLetter(testCV, testPosting), svc.GenerateCoverLetter(ctx, "u1", testCV, testPosting))
	assert.Equal(t, ai.FallbackFormResponses([]string{"q"}), svc.GenerateFormResponses(ctx, "u1", testCV, []string{"q"}))
	assert.Equal(t, ai.FallbackCompatibility(testCV, testPosting), svc.AnalyzeCompatibility(ctx, "u1", testCV, testPosting))
	assert.Zero(t, f.calls)
}

func TestService_EmptyAPIKeyFallsBack(t *testing.T) {
	cfg := allOn()
	cfg.APIKey = ""
	f := &countingFactory{gen: &fakeGenerator{reply: "unused"}}
	svc := newService(t, cfg, f, time.Second)

	assert.Equal(t, ai.FallbackCoverLetter(testCV, testPosting),
		svc.GenerateCoverLetter(context.Background(), "u1", testCV, testPosting))
	assert.Zero(t, f.calls)
}

func TestService_UsesBackendAndCachesIt(t *testing.T) {
	gen := &fakeGenerator{reply: "  Estimado equipo de Acme...  "}
	f := &countingFactory{gen: gen}
	svc := newService(t, allOn(), f, time.Second)
	ctx := context.Background()

	assert.Equal(t, "Estimado equipo de Acme...", svc.GenerateCoverLetter(ctx, "u1", testCV, testPosting))
	assert.Equal(t, "Estimado equipo de Acme...", svc.PersonalizeCV(ctx, "u1", testCV, testPosting))
	assert.Equal(t, 1, f.calls)

	require.Len(t, gen.systems, 2)
	assert.Contains(t, gen.systems[0], "amigable")
	assert.Contains(t, gen.prompts[0], "Acme SpA")

	svc.Invalidate("u1")
	svc.GenerateCoverLetter(ctx, "u1", testCV, testPosting)
	assert.Equal(t, 2, f.calls)
}

func TestService_TogglesDisableFeatures(t *testing.T) {
	cfg := allOn()
	cfg.AutoCoverLetter = false
	cfg.AutoFormFill = false
	cfg.PersonalizationEnabled = false
	gen := &fakeGenerator{reply: `{"compatibility_percentage": 90, "recommendation": "yes"}`}
	svc := newService(t, cfg, &countingFactory{gen: gen}, time.Second)
	ctx := context.Background()

	assert.Equal(t, ai.FallbackCoverLetter(testCV, testPosting), svc.GenerateCoverLetter(ctx, "u1", testCV, testPosting))
	assert.Equal(t, testCV.RawText, svc.PersonalizeCV(ctx, "u1", testCV, testPosting))
	assert.Equal(t, ai.FallbackFormResponses([]string{"q"}), svc.GenerateFormResponses(ctx, "u1", testCV, []string{"q"}))

	c := svc.AnalyzeCompatibility(ctx, "u1", testCV, testPosting)
	assert.Equal(t, 90, c.Percentage)
	assert.Len(t, gen.prompts, 1)
}

func TestService_BackendErrorsFallBack(t *testing.T) {
	cases := map[string]*countingFactory{
		"factory error": {err: errors.New("invalid api key")},
		"call error":    {gen: &fakeGenerator{err: errors.New("quota exceeded")}},
		"empty reply":   {gen: &fakeGenerator{reply: "   "}},
		"malformed":     {gen: &fakeGenerator{reply: "COMPATIBILIDAD: 80%"}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, allOn(), f, time.Second)
			ctx := context.Background()

			assert.Equal(t, ai.FallbackCompatibility(testCV, testPosting), svc.AnalyzeCompatibility(ctx, "u1", testCV, testPosting))
			assert.Equal(t, ai.FallbackFormResponses([]string{"q"}), svc.GenerateFormResponses(ctx, "u1", testCV, []string{"q"}))
		})
	}
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, string, string) (string, error) {
	panic("nil candidate")
}

func TestService_BackendPanicsFallBack(t *testing.T) {
	t.Run("generate", func(t *testing.T) {
		svc := newService(t, allOn(), &countingFactory{gen: panickingGenerator{}}, time.Second)
		ctx := context.Background()

		assert.NotPanics(t, func() {
			assert.Equal(t, ai.FallbackCoverLetter(testCV, testPosting), svc.GenerateCoverLetter(ctx, "u1", testCV, testPosting))
			assert.Equal(t, testCV.RawText, svc.PersonalizeCV(ctx, "u1", testCV, testPosting))
			assert.Equal(t, ai.FallbackFormResponses([]string{"q"}), svc.GenerateFormResponses(ctx, "u1", testCV, []string{"q"}))
			assert.Equal(t, ai.FallbackCompatibility(testCV, testPosting), svc.AnalyzeCompatibility(ctx, "u1", testCV, testPosting))
		})
	})

	t.Run("factory", func(t *testing.T) {
		st := store.NewMemory()
		cfg := allOn()
		cfg.UserID = "u1"
		require.NoError(t, st.SaveAIConfig(context.Background(), cfg))
		factory := func(context.Context, model.AIConfig) (ai.Generator, error) { panic("bad model name") }
		svc := ai.NewService(st, factory, time.Second, logger.NewTest(t))

		assert.NotPanics(t, func() {
			assert.Equal(t, ai.FallbackCoverLetter(testCV, testPosting),
				svc.GenerateCoverLetter(context.Background(), "u1", testCV, testPosting))
		})
	})
}

func TestService_TimeoutFallsBack(t *testing.T) {
	gen := &fakeGenerator{block: true}
	svc := newService(t, allOn(), &countingFactory{gen: gen}, 20*time.Millisecond)

	start := time.Now()
	letter := svc.GenerateCoverLetter(context.Background(), "u1", testCV, testPosting)
	assert.Equal(t, ai.FallbackCoverLetter(testCV, testPosting), letter)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestService_FormResponses(t *testing.T) {
	gen := &fakeGenerator{reply: `{"answers": ["Inmediata", "1.800.000"]}`}
	svc := newService(t, allOn(), &countingFactory{gen: gen}, time.Second)

	got := svc.GenerateFormResponses(context.Background(), "u1", testCV, []string{"¿Disponibilidad?", "¿Renta?"})
	assert.Equal(t, map[string]string{"¿Disponibilidad?": "Inmediata", "¿Renta?": "1.800.000"}, got)
	assert.True(t, strings.Contains(gen.prompts[0], "1. ¿Disponibilidad?"))

	assert.Empty(t, svc.GenerateFormResponses(context.Background(), "u1", testCV, nil))
}
