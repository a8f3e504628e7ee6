package memory

import (
	"regexp"
	"strings"

	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/utils"
)

// contextLimit caps the raw snippet stored with an experience, in runes.
const contextLimit = 100

// rule is one row of the extraction table. Rules are evaluated in table
// order against the lower-cased utterance.
type rule struct {
	pattern *regexp.Regexp

	// firstOnly applies the rule to its first match instead of every match.
	firstOnly bool

	// effect turns a match's capture groups into a memory item. raw is the
	// utterance as the user typed it.
	effect func(groups []string, raw string) storage.MemoryItem
}

func fact(key string) func([]string, string) storage.MemoryItem {
	return func(g []string, _ string) storage.MemoryItem {
		return storage.FactItem(key, strings.TrimSpace(g[1]))
	}
}

func preference(category string) func([]string, string) storage.MemoryItem {
	return func(g []string, _ string) storage.MemoryItem {
		return storage.PreferenceItem(category, strings.TrimSpace(g[1]))
	}
}

func favorite(g []string, _ string) storage.MemoryItem {
	return storage.FactItem("favorite_"+g[1], strings.TrimSpace(g[2]))
}

func experience(g []string, raw string) storage.MemoryItem {
	phrase := g[1] + " " + strings.TrimSpace(g[2])
	return storage.ExperienceItem(phrase, utils.HeadRunes(raw, contextLimit))
}

func topic(g []string, _ string) storage.MemoryItem {
	return storage.TopicItem(g[1])
}

// Topics is the fixed vocabulary recognized as discussion topics.
var Topics = []string{
	"programming",
	"python",
	"javascript",
	"machine learning",
	"ai",
	"artificial intelligence",
	"data science",
	"web development",
	"coding",
	"software",
}

var rules = []rule{
	// facts
	{pattern: regexp.MustCompile(`my name is (\w+)`), firstOnly: true, effect: fact("name")},
	{pattern: regexp.MustCompile(`i am (\w+)`), firstOnly: true, effect: fact("name")},
	{pattern: regexp.MustCompile(`call me (\w+)`), firstOnly: true, effect: fact("name")},
	{pattern: regexp.MustCompile(`i am (\d+) years old`), firstOnly: true, effect: fact("age")},
	{pattern: regexp.MustCompile(`i live in ([^,.]+)`), firstOnly: true, effect: fact("location")},
	{pattern: regexp.MustCompile(`i work as a ([^,.]+)`), firstOnly: true, effect: fact("job")},
	{pattern: regexp.MustCompile(`i am a ([^,.]+)`), firstOnly: true, effect: fact("profession")},
	{pattern: regexp.MustCompile(`my job is ([^,.]+)`), firstOnly: true, effect: fact("job")},

	// preferences
	{pattern: regexp.MustCompile(`i like ([^,.]+)`), effect: preference("likes")},
	{pattern: regexp.MustCompile(`i love ([^,.]+)`), effect: preference("loves")},
	{pattern: regexp.MustCompile(`i prefer ([^,.]+)`), effect: preference("prefers")},
	{pattern: regexp.MustCompile(`my favorite ([^\s]+) is ([^,.]+)`), effect: favorite},
	{pattern: regexp.MustCompile(`i don't like ([^,.]+)`), effect: preference("dislikes")},
	{pattern: regexp.MustCompile(`i hate ([^,.]+)`), effect: preference("hates")},

	// experiences
	{pattern: regexp.MustCompile(`i (went to|visited|traveled to) ([^,.]+)`), effect: experience},
	{pattern: regexp.MustCompile(`i (learned|studied) ([^,.]+)`), effect: experience},
	{pattern: regexp.MustCompile(`i (bought|purchased) ([^,.]+)`), effect: experience},
	{pattern: regexp.MustCompile(`i (finished|completed) ([^,.]+)`), effect: experience},
	{pattern: regexp.MustCompile(`i (started) ([^,.]+)`), effect: experience},

	// topics
	{pattern: regexp.MustCompile(`\b(` + strings.Join(Topics, "|") + `)\b`), effect: topic},
}

// Items runs the extraction table over input and returns the memory items it
// produces, in table order. It touches no storage.
func Items(input string) []storage.MemoryItem {
	lower := strings.ToLower(input)

	var items []storage.MemoryItem
	for _, r := range rules {
		if r.firstOnly {
			if g := r.pattern.FindStringSubmatch(lower); g != nil {
				items = append(items, r.effect(g, input))
			}
			continue
		}

		for _, g := range r.pattern.FindAllStringSubmatch(lower, -1) {
			items = append(items, r.effect(g, input))
		}
	}

	return items
}
