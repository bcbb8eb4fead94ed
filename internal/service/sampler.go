package service

import (
	"math/rand"
	"mooc_exam_backend/internal/config"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/repository"
	"sync"
)

// TierQuota is the number of questions drawn per difficulty.
type TierQuota map[model.Difficulty]int

// QuotaFor resolves the exam's per-tier quotas, falling back to the configured defaults.
func QuotaFor(exam *model.Exam, policy config.ExamConfig) TierQuota {
	pick := func(v *int, def int) int {
		if v != nil {
			return *v
		}
		return def
	}
	return TierQuota{
		model.DifficultyEasy:   pick(exam.EasyCount, policy.DefaultEasy),
		model.DifficultyMedium: pick(exam.MediumCount, policy.DefaultMedium),
		model.DifficultyHard:   pick(exam.HardCount, policy.DefaultHard),
	}
}

// lockedRand serializes access to a *rand.Rand shared by concurrent requests.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Perm(n)
}

func (r *lockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(n, swap)
}

// Shuffler is the randomness the sampler needs.
type Shuffler interface {
	Perm(n int) []int
	Shuffle(n int, swap func(i, j int))
}

// SampleQuestions draws each tier's quota without replacement and shuffles the union.
// A tier holding fewer questions than its quota contributes all of them.
func SampleQuestions(pool []repository.PoolEntry, quota TierQuota, rnd Shuffler) []uint {
	tiers := make(map[model.Difficulty][]uint, len(model.Difficulties))
	for _, q := range pool {
		tiers[q.Difficulty] = append(tiers[q.Difficulty], q.ID)
	}

	var picked []uint
	for _, d := range model.Difficulties {
		ids := tiers[d]
		n := quota[d]
		if n <= 0 || len(ids) == 0 {
			continue
		}
		if n > len(ids) {
			n = len(ids)
		}
		for _, idx := range rnd.Perm(len(ids))[:n] {
			picked = append(picked, ids[idx])
		}
	}

	rnd.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked
}
