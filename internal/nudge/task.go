package nudge

import (
	"math"
	"sort"
	"time"

	"github.com/easeaico/project-nudge/internal/behavior"
	"github.com/easeaico/project-nudge/internal/patterns"
	"github.com/easeaico/project-nudge/internal/types"
)

const (
	// AvoidanceRepetitions is how often a task must have been mentioned to count as avoided.
	AvoidanceRepetitions = 2
	// AvoidanceDays is how long a task must have gone unmentioned to count as avoided.
	AvoidanceDays = 3
)

// AvoidedTask is a task the user keeps mentioning but has not come back to.
type AvoidedTask struct {
	Task         string
	Repetitions  int
	DaysInactive int
	AvgEmotion   float64
	Urgency      float64
}

// Tier buckets the urgency of an avoided task.
func (t AvoidedTask) Tier() patterns.Tier {
	switch {
	case t.Urgency > 0.7:
		return patterns.TierHigh
	case t.Urgency > 0.5:
		return patterns.TierMedium
	default:
		return patterns.TierLow
	}
}

// Urgency scores an avoided task, rounded to two decimals.
func Urgency(reps, daysInactive int, avgEmotion float64) float64 {
	u := 0.4*math.Min(float64(reps)/5, 1) + 0.3*math.Min(float64(daysInactive)/7, 1) + 0.3*math.Min(avgEmotion, 1)
	return math.Round(u*100) / 100
}

type taskStats struct {
	reps         int
	last         time.Time
	emotionTotal float64
}

// FindAvoidedTasks groups the user's task-like messages by task and returns the avoided ones,
// most urgent first. Entries without a usable timestamp do not count towards recency.
func FindAvoidedTasks(set *patterns.Set, history []types.MemoryEntry, now time.Time) []AvoidedTask {
	stats := make(map[string]*taskStats)
	for _, entry := range history {
		if entry.Sender != types.SenderUser {
			continue
		}
		task, ok := behavior.ExtractTask(set, entry.Content)
		if !ok {
			continue
		}
		if entry.TaskReference != "" {
			task = entry.TaskReference
		}
		if task == "" {
			continue
		}
		st, exists := stats[task]
		if !exists {
			st = &taskStats{}
			stats[task] = st
		}
		st.reps++
		st.emotionTotal += entry.EmotionalIntensity
		if entry.Timestamp.After(st.last) {
			st.last = entry.Timestamp
		}
	}

	var tasks []AvoidedTask
	for task, st := range stats {
		if st.last.IsZero() || st.reps < AvoidanceRepetitions {
			continue
		}
		days := int(now.Sub(st.last).Hours() / 24)
		if days < AvoidanceDays {
			continue
		}
		avg := st.emotionTotal / float64(st.reps)
		tasks = append(tasks, AvoidedTask{
			Task:         task,
			Repetitions:  st.reps,
			DaysInactive: days,
			AvgEmotion:   avg,
			Urgency:      Urgency(st.reps, days, avg),
		})
	}

	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Urgency != b.Urgency {
			return a.Urgency > b.Urgency
		}
		if a.DaysInactive != b.DaysInactive {
			return a.DaysInactive > b.DaysInactive
		}
		return a.Task < b.Task
	})
	return tasks
}
