package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

// Policy holds the tunables that govern style retrieval, attribution and
// retrain eligibility. Values load from an optional YAML file and are then
// overridden by environment variables, so deployments can pin a file while
// operators still flip single knobs.
type Policy struct {
	Retrieval   RetrievalPolicy   `yaml:"retrieval"`
	Attribution AttributionPolicy `yaml:"attribution"`
	Retrain     RetrainPolicy     `yaml:"retrain"`
	Promotion   PromotionPolicy   `yaml:"promotion"`
}

type RetrievalPolicy struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type AttributionPolicy struct {
	SumTolerance float64 `yaml:"sum_tolerance"`
}

type RetrainPolicy struct {
	OverrideThreshold int           `yaml:"override_threshold"`
	Interval          time.Duration `yaml:"interval"`
	CheckEvery        string        `yaml:"check_every"`
}

type PromotionPolicy struct {
	BLEUTolerance float64 `yaml:"bleu_tolerance"`
	ChrFTolerance float64 `yaml:"chrf_tolerance"`
}

func DefaultPolicy() Policy {
	return Policy{
		Retrieval: RetrievalPolicy{
			TopK:                5,
			SimilarityThreshold: 0.80,
		},
		Attribution: AttributionPolicy{
			SumTolerance: 0.1,
		},
		Retrain: RetrainPolicy{
			OverrideThreshold: 500,
			Interval:          14 * 24 * time.Hour,
			CheckEvery:        "@every 10m",
		},
		Promotion: PromotionPolicy{
			BLEUTolerance: 1.0,
			ChrFTolerance: 1.0,
		},
	}
}

// LoadPolicy reads POLICY_FILE if set, then applies env overrides, then
// validates. A missing file is only an error when it was explicitly named.
func LoadPolicy(log *logger.Logger) (Policy, error) {
	p := DefaultPolicy()

	path := strings.TrimSpace(os.Getenv("POLICY_FILE"))
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Policy{}, fmt.Errorf("read policy file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Policy{}, fmt.Errorf("parse policy file %q: %w", path, err)
		}
		log.Info("policy file loaded", "path", path)
	}

	p.applyEnv(log)

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	log.Info(
		"policy resolved",
		"top_k", p.Retrieval.TopK,
		"similarity_threshold", p.Retrieval.SimilarityThreshold,
		"override_threshold", p.Retrain.OverrideThreshold,
		"retrain_interval", p.Retrain.Interval.String(),
	)
	return p, nil
}

func (p *Policy) applyEnv(log *logger.Logger) {
	p.Retrieval.TopK = utils.GetEnvAsInt("RETRIEVAL_TOP_K", p.Retrieval.TopK, log)
	p.Retrieval.SimilarityThreshold = utils.GetEnvAsFloat("SIMILARITY_THRESHOLD", p.Retrieval.SimilarityThreshold, log)
	p.Attribution.SumTolerance = utils.GetEnvAsFloat("ATTRIBUTION_SUM_TOLERANCE", p.Attribution.SumTolerance, log)
	p.Retrain.OverrideThreshold = utils.GetEnvAsInt("RETRAIN_OVERRIDE_THRESHOLD", p.Retrain.OverrideThreshold, log)
	p.Promotion.BLEUTolerance = utils.GetEnvAsFloat("PROMOTION_BLEU_TOLERANCE", p.Promotion.BLEUTolerance, log)
	p.Promotion.ChrFTolerance = utils.GetEnvAsFloat("PROMOTION_CHRF_TOLERANCE", p.Promotion.ChrFTolerance, log)

	if days := utils.GetEnvAsInt("RETRAIN_INTERVAL_DAYS", 0, log); days > 0 {
		p.Retrain.Interval = time.Duration(days) * 24 * time.Hour
	}
	if spec := strings.TrimSpace(os.Getenv("RETRAIN_CHECK_EVERY")); spec != "" {
		p.Retrain.CheckEvery = spec
	}
}

func (p Policy) Validate() error {
	if p.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", p.Retrieval.TopK)
	}
	if p.Retrieval.SimilarityThreshold <= 0 || p.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in (0,1], got %g", p.Retrieval.SimilarityThreshold)
	}
	if p.Attribution.SumTolerance <= 0 {
		return fmt.Errorf("attribution.sum_tolerance must be positive, got %g", p.Attribution.SumTolerance)
	}
	if p.Retrain.OverrideThreshold <= 0 {
		return fmt.Errorf("retrain.override_threshold must be positive, got %d", p.Retrain.OverrideThreshold)
	}
	if p.Retrain.Interval <= 0 {
		return fmt.Errorf("retrain.interval must be positive, got %s", p.Retrain.Interval)
	}
	if p.Promotion.BLEUTolerance < 0 || p.Promotion.ChrFTolerance < 0 {
		return fmt.Errorf("promotion tolerances must be non-negative")
	}
	return nil
}
