// Package drift compares consecutive normalized answers per
// (subject, prompt, model) key and classifies how much they moved.
package drift

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.uber.org/zap"

	"github.com/voxmetrics/sentinel/internal/model"
)

// AlertSink receives drifting and decayed classifications. Implementations
// must not block; the detector calls Send inline on the scoring path.
type AlertSink interface {
	Send(alert model.DriftAlert)
}

// Config holds the classification thresholds.
type Config struct {
	// DriftThreshold is the drift score at which an answer stops being
	// stable.
	DriftThreshold float64
	// DecayThreshold is the drift score at which an answer is considered
	// decayed (effectively a different answer).
	DecayThreshold float64
	// MaxTrackedKeys bounds the baseline map. Zero means the default.
	MaxTrackedKeys int
}

const defaultMaxTrackedKeys = 10000

// Detector scores answers against the previous answer seen for the same key.
// Safe for concurrent use.
type Detector struct {
	cfg  Config
	sink AlertSink

	mu    sync.Mutex
	last  map[model.Combo]string
	stats map[model.DriftStatus]int
}

// NewDetector validates thresholds and returns a detector. sink may be nil.
func NewDetector(cfg Config, sink AlertSink) (*Detector, error) {
	if cfg.DriftThreshold < 0 || cfg.DriftThreshold > 1 {
		return nil, eris.Errorf("drift: drift threshold %v outside [0,1]", cfg.DriftThreshold)
	}
	if cfg.DecayThreshold < 0 || cfg.DecayThreshold > 1 {
		return nil, eris.Errorf("drift: decay threshold %v outside [0,1]", cfg.DecayThreshold)
	}
	if cfg.DriftThreshold >= cfg.DecayThreshold {
		return nil, eris.Errorf("drift: drift threshold %v must be below decay threshold %v", cfg.DriftThreshold, cfg.DecayThreshold)
	}
	if cfg.MaxTrackedKeys <= 0 {
		cfg.MaxTrackedKeys = defaultMaxTrackedKeys
	}
	return &Detector{
		cfg:   cfg,
		sink:  sink,
		last:  make(map[model.Combo]string),
		stats: make(map[model.DriftStatus]int),
	}, nil
}

// Score classifies one normalized answer against the stored baseline for its
// key and advances the baseline. Empty and malformed rows score as full
// drift without disturbing the baseline, so a transient blank response does
// not erase an established answer.
func (d *Detector) Score(n model.ResponseNormalized) model.DriftScore {
	key := model.Combo{Subject: n.Subject, PromptID: n.PromptID, Model: n.Model}

	score := model.DriftScore{
		DriftID:  uuid.NewString(),
		Subject:  n.Subject,
		PromptID: n.PromptID,
		Model:    n.Model,
		TS:       n.TS,
	}

	d.mu.Lock()
	if n.Status != model.NormalizedValid {
		score.SimilarityPrev = 0
		score.Drift = 1
		score.Status = model.DriftDecayed
		score.Explanation = fmt.Sprintf("%s response treated as full drift", n.Status)
	} else if prev, seen := d.last[key]; !seen {
		score.SimilarityPrev = 1
		score.Drift = 0
		score.Status = model.DriftStable
		score.Explanation = "first observation for this key"
		d.track(key, n.Answer)
	} else {
		sim := similarity(prev, n.Answer)
		score.SimilarityPrev = sim
		score.Drift = 1 - sim
		score.Status = d.classify(score.Drift)
		score.Explanation = explain(score.Status, score.Drift)
		d.last[key] = n.Answer
	}
	d.stats[score.Status]++
	d.mu.Unlock()

	if score.Status != model.DriftStable && d.sink != nil {
		d.sink.Send(model.DriftAlert{
			Subject:  n.Subject,
			PromptID: n.PromptID,
			Model:    n.Model,
			Drift:    score.Drift,
			Status:   score.Status,
			TS:       n.TS,
		})
	}

	if score.Status == model.DriftDecayed {
		zap.L().Warn("answer decayed",
			zap.String("subject", n.Subject),
			zap.String("prompt_id", n.PromptID),
			zap.String("model", n.Model),
			zap.Float64("drift", score.Drift),
		)
	}
	return score
}

// Seed installs a baseline answer for a key without scoring it. Used to
// rehydrate baselines from persisted answers after a restart.
func (d *Detector) Seed(key model.Combo, answer string) {
	if answer == "" {
		return
	}
	d.mu.Lock()
	d.track(key, answer)
	d.mu.Unlock()
}

// Stats returns classification counts since construction or the last Reset.
func (d *Detector) Stats() map[model.DriftStatus]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[model.DriftStatus]int, len(d.stats))
	for k, v := range d.stats {
		out[k] = v
	}
	return out
}

// TrackedKeys reports how many baselines are held.
func (d *Detector) TrackedKeys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}

// Reset drops all baselines and counters.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = make(map[model.Combo]string)
	d.stats = make(map[model.DriftStatus]int)
}

// track inserts a baseline, evicting an arbitrary entry at capacity.
// Callers hold d.mu.
func (d *Detector) track(key model.Combo, answer string) {
	if len(d.last) >= d.cfg.MaxTrackedKeys {
		for k := range d.last {
			delete(d.last, k)
			break
		}
	}
	d.last[key] = answer
}

func (d *Detector) classify(drift float64) model.DriftStatus {
	switch {
	case drift < d.cfg.DriftThreshold:
		return model.DriftStable
	case drift < d.cfg.DecayThreshold:
		return model.DriftDrifting
	default:
		return model.DriftDecayed
	}
}

func explain(status model.DriftStatus, drift float64) string {
	switch status {
	case model.DriftStable:
		return fmt.Sprintf("answer consistent with previous observation (drift %.2f)", drift)
	case model.DriftDrifting:
		return fmt.Sprintf("answer moving away from previous observation (drift %.2f)", drift)
	default:
		return fmt.Sprintf("answer no longer resembles previous observation (drift %.2f)", drift)
	}
}

// similarity is a normalized edit-distance ratio in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}
