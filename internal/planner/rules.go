package planner

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/flemzord/recall/internal/memory"
)

var (
	listPhrases = []string{
		"list all", "list my", "show all", "show me all", "what are all",
		"every", "all my", "enumerate",
	}
	summaryPhrases = []string{"summarize", "summarise", "summary", "overview", "recap", "sum up"}
	timePhrases    = []string{
		"when", "yesterday", "today", "tomorrow", "ago", "since", "before", "after",
		"last week", "last month", "last year", "this week", "this month", "this year",
	}
	// "may" is left out: it is far more often a modal verb.
	calendarWords = []string{
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
		"january", "february", "march", "april", "june", "july", "august",
		"september", "october", "november", "december",
	}
	whWords     = []string{"what", "who", "whom", "whose", "where", "which", "why", "how", "when"}
	auxiliaries = []string{
		"do", "does", "did", "is", "are", "was", "were", "am", "can", "could",
		"have", "has", "had", "will", "would", "should", "shall",
	}

	// Plural section nouns name a section on their own. Singular ones double
	// as verbs ("did I note"), so they count only after a determiner.
	sectionPlurals = map[string]memory.Section{
		"tasks": memory.SectionTask, "todos": memory.SectionTask,
		"notes":  memory.SectionNote,
		"events": memory.SectionEvent, "meetings": memory.SectionEvent,
		"reminders": memory.SectionReminder,
		"diaries":   memory.SectionDiary, "journals": memory.SectionDiary,
	}
	sectionSingulars = map[string]memory.Section{
		"task": memory.SectionTask, "todo": memory.SectionTask,
		"note":  memory.SectionNote,
		"event": memory.SectionEvent, "meeting": memory.SectionEvent,
		"reminder": memory.SectionReminder,
		"diary":    memory.SectionDiary, "journal": memory.SectionDiary,
	}
	determiners = []string{"my", "our", "every", "all", "any"}

	isoDateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)
	withRe    = regexp.MustCompile(`\b[Ww]ith\s+(\p{Lu}[\p{L}'-]*)`)
)

// rules classifies text without any external capability beyond the
// optional people directory.
func (p *Planner) rules(ctx context.Context, text string) memory.Query {
	lower := strings.ToLower(text)
	padded := " " + normalize(lower) + " "
	words := strings.Fields(padded)

	q := memory.Query{Text: text}
	switch {
	case containsAny(padded, listPhrases):
		q.Intent = memory.IntentList
		q.Reasoning = "list phrasing"
	case containsAny(padded, timePhrases) || containsAny(padded, calendarWords) || isoDateRe.MatchString(text):
		q.Intent = memory.IntentTemporal
		q.Reasoning = "time phrasing"
		if dr, label := p.resolveDate(padded, text); dr != nil {
			q.Filters.DateRange = dr
			q.Reasoning += ", date range " + label
		}
	case containsAny(padded, summaryPhrases):
		q.Intent = memory.IntentSummary
		q.Reasoning = "summary phrasing"
	case isQuestion(lower, words):
		q.Intent = memory.IntentFactual
		q.Reasoning = "interrogative"
	default:
		q.Intent = memory.IntentUnknown
		q.Reasoning = "no rule matched"
	}
	q.MaxResults = defaultLimit(q.Intent)

	q.Filters.Sections = sections(words)
	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		if !containsFold(q.Filters.Tags, m[1]) {
			q.Filters.Tags = append(q.Filters.Tags, m[1])
		}
	}
	for _, m := range withRe.FindAllStringSubmatch(text, -1) {
		if !containsFold(q.Filters.People, m[1]) && p.knows(ctx, m[1]) {
			q.Filters.People = append(q.Filters.People, m[1])
		}
	}
	return q
}

func sections(words []string) []memory.Section {
	var out []memory.Section
	for i, w := range words {
		s, ok := sectionPlurals[w]
		if !ok && i > 0 && slices.Contains(determiners, words[i-1]) {
			s, ok = sectionSingulars[w]
		}
		if ok && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// knows reports whether name is a person the store has memories about. A
// failed lookup counts as unknown: a missing filter only widens the search.
func (p *Planner) knows(ctx context.Context, name string) bool {
	if p.people == nil {
		return false
	}
	ok, err := p.people.KnowsPerson(ctx, name)
	if err != nil {
		p.logger.Debug("people lookup failed", "name", name, "error", err)
		return false
	}
	return ok
}

// resolveDate turns the first resolvable relative phrase, or an ISO date,
// into an inclusive range in the planner's location.
func (p *Planner) resolveDate(padded, raw string) (*memory.DateRange, string) {
	now := p.now().In(p.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)
	week := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7)) // Monday
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, p.loc)
	year := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, p.loc)

	span := func(from, to time.Time) *memory.DateRange {
		return &memory.DateRange{From: from.UTC(), To: to.Add(-time.Millisecond).UTC()}
	}
	switch {
	case strings.Contains(padded, " today "):
		return span(day, day.AddDate(0, 0, 1)), "today"
	case strings.Contains(padded, " yesterday "):
		return span(day.AddDate(0, 0, -1), day), "yesterday"
	case strings.Contains(padded, " this week "):
		return span(week, week.AddDate(0, 0, 7)), "this week"
	case strings.Contains(padded, " last week "):
		return span(week.AddDate(0, 0, -7), week), "last week"
	case strings.Contains(padded, " this month "):
		return span(month, month.AddDate(0, 1, 0)), "this month"
	case strings.Contains(padded, " last month "):
		return span(month.AddDate(0, -1, 0), month), "last month"
	case strings.Contains(padded, " this year "):
		return span(year, year.AddDate(1, 0, 0)), "this year"
	case strings.Contains(padded, " last year "):
		return span(year.AddDate(-1, 0, 0), year), "last year"
	}
	if m := isoDateRe.FindStringSubmatch(raw); m != nil {
		if d, err := time.ParseInLocation(time.DateOnly, m[1], p.loc); err == nil {
			return span(d, d.AddDate(0, 0, 1)), m[1]
		}
	}
	return nil, ""
}

func isQuestion(lower string, words []string) bool {
	if strings.HasSuffix(strings.TrimSpace(lower), "?") {
		return true
	}
	if len(words) == 0 {
		return false
	}
	if slices.Contains(whWords, words[0]) || slices.Contains(auxiliaries, words[0]) {
		return true
	}
	return len(words) > 1 && words[0] == "tell" && words[1] == "me"
}

// normalize replaces punctuation with spaces so phrases match on word
// boundaries. Hashtag markers and hyphens inside words are dropped too.
func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}), " ")
}

func containsAny(padded string, phrases []string) bool {
	for _, ph := range phrases {
		if strings.Contains(padded, " "+ph+" ") {
			return true
		}
	}
	return false
}

func containsFold(values []string, want string) bool {
	return slices.ContainsFunc(values, func(v string) bool { return strings.EqualFold(v, want) })
}
