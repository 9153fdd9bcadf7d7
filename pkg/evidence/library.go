package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// Load reads the master curriculum from a JSON file, validates the
// curriculum-wide invariants, and drops any individual achievement that
// is too malformed to tailor from. A dropped record produces a warning
// rather than a failed Load, per the requirement that one bad record
// degrade a run instead of aborting it.
func Load(path string) (CurriculumData, []string, error) {
	var data CurriculumData

	raw, err := os.ReadFile(path)
	if err != nil {
		return data, nil, errors.Wrapf(err, "failed to read curriculum file: %s", path)
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return data, nil, errors.Wrapf(err, "failed to parse curriculum JSON: %s", path)
	}

	if err := data.Validate(); err != nil {
		return data, nil, errors.Wrap(err, "curriculum validation failed")
	}

	kept := make([]domain.AchievementRecord, 0, len(data.Achievements))
	var warnings []string
	for i, a := range data.Achievements {
		if reason := malformedReason(a); reason != "" {
			warnings = append(warnings, fmt.Sprintf("skipped achievement at index %d (role_id=%q): %s", i, a.RoleID, reason))
			continue
		}
		kept = append(kept, a)
	}
	data.Achievements = kept

	return data, warnings, nil
}

// malformedReason reports why a is too malformed to tailor from, or ""
// if it's usable. RoleID, Company, and Result are all load-bearing: the
// stitcher groups by RoleID/Company and every generated bullet traces
// back to Result for grounding.
func malformedReason(a domain.AchievementRecord) string {
	switch {
	case a.RoleID == "":
		return "missing role_id"
	case a.Company == "":
		return "missing company"
	case a.Result == "":
		return "missing result"
	default:
		return ""
	}
}

// Validate checks the curriculum-wide invariants: that there's anything
// to tailor from at all, and that the candidate identity is present. Per
// record malformations are handled by Load, not here, since a bad record
// should drop that record rather than fail the whole curriculum.
func (d *CurriculumData) Validate() error {
	if len(d.Achievements) == 0 {
		return errors.New("no achievements found in curriculum")
	}
	if d.Profile.Name == "" {
		return errors.New("profile name is required")
	}
	return nil
}

// Library is the loaded curriculum plus its embedding index. Unchanged
// achievements reuse their cached embedding across process runs (the
// index is keyed by a hash of the achievement's grounding fields, not
// just its ID, so an edited achievement re-embeds automatically).
type Library struct {
	Data     CurriculumData
	Warnings []string
	embedder Embedder
	coll     *chromem.Collection
}

// Open loads the curriculum at dataPath and opens (or creates) a
// persisted embedding index at indexPath. Passing an empty indexPath
// keeps the index in memory only, which is fine for short-lived CLI runs
// and tests. log receives a warning for every achievement record dropped
// as malformed; a nil log is replaced with a no-op logger.
func Open(ctx context.Context, dataPath, indexPath string, embedder Embedder, log *zap.Logger) (*Library, error) {
	if log == nil {
		log = zap.NewNop()
	}

	data, warnings, err := Load(dataPath)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn("dropped malformed curriculum record", zap.String("reason", w))
	}
	if embedder == nil {
		embedder = NewHashEmbedder()
	}

	var db *chromem.DB
	if indexPath != "" {
		db, err = chromem.NewPersistentDB(indexPath, false)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open embedding index")
	}

	coll, err := db.GetOrCreateCollection("achievements", nil, func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open achievements collection")
	}

	lib := &Library{Data: data, Warnings: warnings, embedder: embedder, coll: coll}
	if err := lib.reindex(ctx); err != nil {
		return nil, err
	}
	return lib, nil
}

// reindex adds or refreshes embeddings for any achievement whose content
// hash isn't already present in the collection.
func (l *Library) reindex(ctx context.Context) error {
	for _, a := range l.Data.Achievements {
		id := a.ID()
		hash := contentHash(a)
		existing, err := l.coll.GetByID(ctx, id)
		if err == nil && existing.Metadata["content_hash"] == hash {
			continue
		}

		doc := chromem.Document{
			ID:      id,
			Content: groundingText(a),
			Metadata: map[string]string{
				"content_hash": hash,
				"company":      a.Company,
				"role":         a.Role,
			},
		}
		if err := l.coll.AddDocument(ctx, doc); err != nil {
			return errors.Wrapf(err, "failed to index achievement %s", id)
		}
	}
	return nil
}

func contentHash(a domain.AchievementRecord) string {
	h := sha256.New()
	h.Write([]byte(groundingText(a)))
	return hex.EncodeToString(h.Sum(nil))
}

func groundingText(a domain.AchievementRecord) string {
	parts := []string{a.Situation, a.Task}
	parts = append(parts, a.Actions...)
	parts = append(parts, a.Result)
	parts = append(parts, a.Keywords...)
	parts = append(parts, a.Metrics...)
	return strings.Join(parts, " ")
}

// Candidate is one achievement surfaced by a search, with the retrieval
// score that ranked it.
type Candidate struct {
	Achievement domain.AchievementRecord
	Score       float64
}

// Search returns up to k achievements most relevant to query, restricted
// to achievements whose keywords intersect the must-have whitelist when
// whitelist is non-empty. Relevance combines kNN similarity with a
// keyword-overlap bonus so an achievement sharing vocabulary with the
// posting outranks one that merely shares embedding-space proximity.
func (l *Library) Search(ctx context.Context, query string, whitelist []string, k int) ([]Candidate, error) {
	if k <= 0 || k > len(l.Data.Achievements) {
		k = len(l.Data.Achievements)
	}

	results, err := l.coll.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "embedding query failed")
	}

	byID := make(map[string]domain.AchievementRecord, len(l.Data.Achievements))
	for _, a := range l.Data.Achievements {
		byID[a.ID()] = a
	}

	wl := make(map[string]bool, len(whitelist))
	for _, w := range whitelist {
		wl[strings.ToLower(w)] = true
	}

	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		a, ok := byID[r.ID]
		if !ok {
			continue
		}
		if len(wl) > 0 && !anyKeywordMatches(a.Keywords, wl) {
			continue
		}
		out = append(out, Candidate{Achievement: a, Score: float64(r.Similarity) + keywordBonus(a.Keywords, wl)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func anyKeywordMatches(keywords []string, whitelist map[string]bool) bool {
	for _, k := range keywords {
		if whitelist[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

func keywordBonus(keywords []string, whitelist map[string]bool) float64 {
	matches := 0
	for _, k := range keywords {
		if whitelist[strings.ToLower(k)] {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	return 0.05 * float64(matches)
}

// ByID returns the achievement with the given ID, if present.
func (l *Library) ByID(id string) (domain.AchievementRecord, bool) {
	for _, a := range l.Data.Achievements {
		if a.ID() == id {
			return a, true
		}
	}
	return domain.AchievementRecord{}, false
}
