// Package lessons indexes past grading runs and retrieves soft guidance
// for new ones: which violation patterns recur for a given role level,
// and which phrasing patterns scored well. It never gates or blocks a
// generation; it only biases which dimension the Improver tackles first.
package lessons

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// Record is one archived grading outcome, kept for future retrieval.
type Record struct {
	Company      string            `json:"company"`
	Role         string            `json:"role"`
	RoleLevel    string            `json:"role_level"`
	GradedAt     time.Time         `json:"graded_at"`
	Grade        domain.GradeResult `json:"grade"`
	Notes        []string          `json:"notes"`
}

// Index is the full set of archived records plus a retrieval-friendly
// summary computed once per load.
type Index struct {
	Records []Record `json:"records"`
}

// Store persists grading records to a directory of one JSON file per job
// and rebuilds an in-memory Index from them.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a directory-backed lesson store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "failed to create lessons directory: %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Append archives one grading record.
func (s *Store) Append(rec Record) error {
	name := fmt.Sprintf("%d-%s.json", rec.GradedAt.UnixNano(), sanitize(rec.Company+"-"+rec.Role))
	path := filepath.Join(s.dir, name)
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal lesson record")
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write lesson record: %s", path)
	}
	return nil
}

// Load reads every archived record in the store directory.
func (s *Store) Load() (Index, error) {
	var idx Index

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return idx, errors.Wrapf(err, "failed to read lessons directory: %s", s.dir)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue // skip unreadable entries rather than fail the whole load
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue // skip malformed entries
		}
		idx.Records = append(idx.Records, rec)
	}

	return idx, nil
}

// Guidance is the soft signal handed to the Improver.
type Guidance struct {
	// WeakestDimension is the dimension most often responsible for low
	// composite scores among similar past roles, if any pattern exists.
	WeakestDimension string
	PriorNotes       []string
	SimilarCount     int
}

// Retrieve finds guidance relevant to roleLevel, biasing toward lessons
// from jobs that scored poorly (there's more to learn from a miss than a
// hit) and that share the role level.
func Retrieve(ctx context.Context, idx Index, roleLevel string) Guidance {
	var g Guidance

	dimensionMisses := map[string]int{}

	for _, rec := range idx.Records {
		if rec.RoleLevel != "" && roleLevel != "" && rec.RoleLevel != roleLevel {
			continue
		}
		g.SimilarCount++

		weakest, score := weakestDimension(rec.Grade)
		if score < 8.5 {
			dimensionMisses[weakest]++
		}
		g.PriorNotes = append(g.PriorNotes, rec.Notes...)
	}

	best, bestCount := "", 0
	for dim, count := range dimensionMisses {
		if count > bestCount {
			best, bestCount = dim, count
		}
	}
	g.WeakestDimension = best

	return g
}

func weakestDimension(g domain.GradeResult) (string, float64) {
	dims := map[string]float64{
		"ats":                g.ATS,
		"impact_clarity":     g.ImpactClarity,
		"jd_alignment":       g.JDAlignment,
		"executive_presence": g.ExecutivePresence,
		"anti_hallucination": g.AntiHallucination,
	}
	weakest, lowest := "", 10.0
	for name, v := range dims {
		if v < lowest {
			weakest, lowest = name, v
		}
	}
	return weakest, lowest
}

func sanitize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}
