package fusionconfig

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"selinfer/internal/sel"
)

func validWeights() sel.FusionWeights {
	return sel.FusionWeights{
		sel.FusionSourceMLInference:         0.50,
		sel.FusionSourceLinguisticFeatures:   0.25,
		sel.FusionSourceBehavioralFeatures:   0.15,
		sel.FusionSourceConfidenceAdjustment: 0.10,
	}
}

func validConfig() *sel.FusionConfig {
	cfg := &sel.FusionConfig{Version: "1.0.0", Description: "test", Weights: map[sel.Skill]sel.FusionWeights{}}
	for _, sk := range sel.Skills {
		cfg.Weights[sk] = validWeights()
	}
	return cfg
}

func writeTestDocument(t *testing.T, cfg *sel.FusionConfig) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fusion.yaml")
	b, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestValidateRejectsBadWeightSum(t *testing.T) {
	cfg := validConfig()
	w := cfg.Weights[sel.SkillEmpathy]
	w[sel.FusionSourceMLInference] = 0.1 // breaks the sum
	cfg.Weights[sel.SkillEmpathy] = w

	err := Validate(cfg)
	require.Error(t, err)
	var invalidErr *sel.InvalidConfigError
	require.ErrorAs(t, err, &invalidErr)
}

func TestValidateRejectsMissingSkill(t *testing.T) {
	cfg := validConfig()
	delete(cfg.Weights, sel.SkillResilience)
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeWeight(t *testing.T) {
	cfg := validConfig()
	w := cfg.Weights[sel.SkillEmpathy]
	w[sel.FusionSourceMLInference] = 1.5
	cfg.Weights[sel.SkillEmpathy] = w
	require.Error(t, Validate(cfg))
}

func TestLoadGetReloadRoundTrip(t *testing.T) {
	cfg := validConfig()
	path := writeTestDocument(t, cfg)

	store, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Version, store.Get().Version)

	// Reloading an unchanged document must be a content no-op.
	require.NoError(t, store.Reload())
	require.Equal(t, cfg.Weights[sel.SkillEmpathy], store.Get().Weights[sel.SkillEmpathy])
}

func TestSetRejectsInvalidAndKeepsOldConfig(t *testing.T) {
	cfg := validConfig()
	path := writeTestDocument(t, cfg)
	store, err := Load(path)
	require.NoError(t, err)

	bad := validConfig()
	w := bad.Weights[sel.SkillEmpathy]
	w[sel.FusionSourceMLInference] = 0.0
	bad.Weights[sel.SkillEmpathy] = w

	err = store.Set(bad, false)
	require.Error(t, err)
	require.Equal(t, validWeights(), store.Get().Weights[sel.SkillEmpathy])
}

func TestSetSkillWeightsPutThenGet(t *testing.T) {
	cfg := validConfig()
	path := writeTestDocument(t, cfg)
	store, err := Load(path)
	require.NoError(t, err)

	newWeights := sel.FusionWeights{
		sel.FusionSourceMLInference:         0.70,
		sel.FusionSourceLinguisticFeatures:   0.10,
		sel.FusionSourceBehavioralFeatures:   0.10,
		sel.FusionSourceConfidenceAdjustment: 0.10,
	}
	require.NoError(t, store.SetSkillWeights(sel.SkillEmpathy, newWeights, false))
	require.Equal(t, newWeights, store.Get().Weights[sel.SkillEmpathy])
}

func TestConcurrentGetDuringSetNeverObservesPartial(t *testing.T) {
	cfg := validConfig()
	path := writeTestDocument(t, cfg)
	store, err := Load(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			w := validWeights()
			_ = store.SetSkillWeights(sel.SkillEmpathy, w, false)
		}
	}()

	for i := 0; i < 1000; i++ {
		got := store.Get()
		require.NoError(t, Validate(got), "every observed config must be fully valid, never partial")
	}
	close(stop)
	wg.Wait()
}
