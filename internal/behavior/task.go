package behavior

import (
	"strings"

	"github.com/easeaico/project-nudge/internal/patterns"
)

const maxTaskWords = 6

var leadingFillers = map[string]bool{"to": true, "the": true, "my": true, "a": true, "an": true, "that": true, "this": true}

// ExtractTask reports whether message reads like a task statement and, if so, the short task
// phrase it is about. The phrase follows the earliest task cue, or starts at a task keyword when
// no cue is present.
func ExtractTask(set *patterns.Set, message string) (string, bool) {
	text := patterns.NormalizeText(message)

	cueStart, cueEnd, found := -1, -1, false
	for _, p := range set.TaskCues {
		start, end, ok := p.Find(text)
		if ok && (!found || start < cueStart) {
			cueStart, cueEnd, found = start, end, true
			// A cue that is itself a task verb belongs to the phrase.
			if isTaskKeyword(set, p.Text) {
				cueEnd = start
			}
		}
	}
	if found {
		if task := taskPhrase(text[cueEnd:]); task != "" {
			return task, true
		}
		// A bare cue such as "deadline" is still task talk; fall back to keywords.
	}

	kwStart := -1
	for _, p := range set.TaskKeywords {
		start, _, ok := p.Find(text)
		if ok && (kwStart < 0 || start < kwStart) {
			kwStart = start
		}
	}
	if kwStart >= 0 {
		return taskPhrase(text[kwStart:]), true
	}
	return "", found
}

// IsTaskLike reports whether message matches the task lexicon.
func IsTaskLike(set *patterns.Set, message string) bool {
	_, ok := ExtractTask(set, message)
	return ok
}

func isTaskKeyword(set *patterns.Set, text string) bool {
	for _, kw := range set.TaskKeywords {
		if kw.Text == text {
			return true
		}
	}
	return false
}

func taskPhrase(rest string) string {
	if i := strings.IndexAny(rest, ".,!?;:\n"); i >= 0 {
		rest = rest[:i]
	}
	for _, sep := range []string{" but ", " because ", " though "} {
		if i := strings.Index(rest, sep); i >= 0 {
			rest = rest[:i]
		}
	}
	words := strings.Fields(rest)
	for len(words) > 0 && leadingFillers[words[0]] {
		words = words[1:]
	}
	if len(words) > maxTaskWords {
		words = words[:maxTaskWords]
	}
	return strings.Join(words, " ")
}
