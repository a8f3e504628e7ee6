package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/papercomputeco/chatmem/pkg/storage"
)

// recentExperiences is how many of the newest experiences are considered.
const recentExperiences = 5

// selfQueries trigger a summary of everything known about the user.
var selfQueries = []string{"my name", "who am i", "about me", "remember me", "know about me"}

// Retriever selects stored memory relevant to a new utterance.
type Retriever struct {
	store  Reader
	logger *slog.Logger
}

// NewRetriever returns a Retriever that reads from store.
func NewRetriever(store Reader, logger *slog.Logger) (*Retriever, error) {
	if store == nil {
		return nil, ErrNotConfigured
	}
	return &Retriever{
		store:  store,
		logger: logger,
	}, nil
}

// Relevant returns short memory lines for the prompt, in this order: a
// summary of facts and preferences when the user asks about themselves,
// prior topic discussions mentioned in the input, and recent experiences
// sharing a word with the input. Read failures are logged and the lines
// gathered so far are returned.
func (r *Retriever) Relevant(ctx context.Context, conversationID, userInput string) []string {
	lower := strings.ToLower(userInput)
	lines := []string{}

	if isSelfQuery(lower) {
		summary, err := r.profile(ctx, conversationID)
		lines = append(lines, summary...)
		if err != nil {
			r.warn(conversationID, err)
			return lines
		}
	}

	topics, err := r.store.ListTopics(ctx, conversationID)
	if err != nil {
		r.warn(conversationID, err)
		return lines
	}
	for _, t := range topics {
		if strings.Contains(lower, t.Topic) {
			lines = append(lines, fmt.Sprintf("Previous %s discussions: %d times", t.Topic, t.Frequency))
		}
	}

	exps, err := r.store.RecentExperiences(ctx, conversationID, recentExperiences)
	if err != nil {
		r.warn(conversationID, err)
		return lines
	}
	inputWords := wordSet(lower)
	for _, e := range exps {
		if sharesWord(inputWords, e.Experience) {
			lines = append(lines, "Recent experience: "+e.Experience)
		}
	}

	return lines
}

func (r *Retriever) profile(ctx context.Context, conversationID string) ([]string, error) {
	var lines []string

	facts, err := r.store.ListFacts(ctx, conversationID)
	if err != nil {
		return lines, err
	}
	if len(facts) > 0 {
		pairs := make([]string, 0, len(facts))
		for _, f := range facts {
			pairs = append(pairs, f.Key+": "+f.Value)
		}
		lines = append(lines, "Facts about you: "+strings.Join(pairs, ", "))
	}

	prefs, err := r.store.ListPreferences(ctx, conversationID)
	if err != nil {
		return lines, err
	}
	lines = append(lines, preferenceLines(prefs)...)

	return lines, nil
}

func (r *Retriever) warn(conversationID string, err error) {
	r.logger.Warn("failed to retrieve memory",
		"conversation_id", conversationID,
		"error", err,
	)
}

func preferenceLines(prefs []*storage.Preference) []string {
	byCategory := map[string][]string{}
	for _, p := range prefs {
		byCategory[p.Category] = append(byCategory[p.Category], p.Item)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	slices.Sort(categories)

	lines := make([]string, 0, len(categories))
	for _, c := range categories {
		lines = append(lines, fmt.Sprintf("You %s: %s", c, strings.Join(byCategory[c], ", ")))
	}
	return lines
}

func isSelfQuery(lower string) bool {
	for _, q := range selfQueries {
		if strings.Contains(lower, q) {
			return true
		}
	}
	return false
}

func wordSet(lower string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range words(lower) {
		set[w] = struct{}{}
	}
	return set
}

func sharesWord(set map[string]struct{}, phrase string) bool {
	for _, w := range words(strings.ToLower(phrase)) {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

// words splits s on anything that isn't a letter, digit or apostrophe.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
