package conversation

import (
	"regexp"
	"slices"
	"strings"

	"recflow/internal/config"
	"recflow/internal/textutil"
)

var (
	hashToken     = regexp.MustCompile(`#([^\s#,;]+)`)
	listSplit     = regexp.MustCompile(`[\s,;]+`)
	handlePattern = regexp.MustCompile(`^\w{3,32}$`)
)

var (
	tagSkipWords         = []string{"-", "skip", "/skip", "пропустить", "без тегов"}
	participantSkipWords = []string{"-", "skip", "/skip", "пропустить", "никого"}
	affirmatives         = []string{"yes", "y", "да", "ага", "ок", "ok", "+", "давай", "конечно"}
	negatives            = []string{"no", "n", "нет", "не", "неа", "-"}
	backWords            = []string{"/back", "back", "назад"}
	restartWords         = []string{"/restart", "restart", "заново", "сначала"}
)

// Vocabulary is the tag and participant vocabulary offered to the user.
type Vocabulary struct {
	Tags        []config.TagOption
	Roster      []string
	FallbackTag string

	synonyms map[string]string
}

// NewVocabulary prepares the synonym lookup keyed by folded form. Tag names
// are stored in the form text answers produce.
func NewVocabulary(tags []config.TagOption, synonyms map[string]string, roster []string, fallback string) Vocabulary {
	v := Vocabulary{
		Tags:        make([]config.TagOption, 0, len(tags)),
		Roster:      slices.Clone(roster),
		FallbackTag: config.TagName(fallback),
		synonyms:    make(map[string]string, len(synonyms)),
	}
	if v.FallbackTag == "" {
		v.FallbackTag = fallback
	}
	for _, tag := range tags {
		name := config.TagName(tag.Name)
		if name == "" {
			continue
		}
		if tag.Label == "" {
			tag.Label = tag.Name
		}
		tag.Name = name
		v.Tags = append(v.Tags, tag)
	}
	for from, to := range synonyms {
		key, target := config.TagName(from), config.TagName(to)
		if key == "" || target == "" {
			continue
		}
		v.synonyms[key] = target
	}
	return v
}

// VocabularyFromConfig builds the vocabulary from the conversation section.
func VocabularyFromConfig(cfg *config.Config) Vocabulary {
	c := cfg.Conversation
	return NewVocabulary(c.Tags, c.Synonyms, c.Participants, c.FallbackTag)
}

// HasTag reports whether name is one of the fixed tags.
func (v Vocabulary) HasTag(name string) bool {
	return slices.ContainsFunc(v.Tags, func(t config.TagOption) bool { return t.Name == name })
}

// CanonicalTag maps one raw token to its stored form, or "".
func (v Vocabulary) CanonicalTag(token string) string {
	key := config.TagName(strings.TrimLeft(token, "#"))
	if key == "" {
		return ""
	}
	if mapped, ok := v.synonyms[key]; ok {
		return mapped
	}
	return key
}

// ParseTags turns a free-text answer into a tag set. Hash-prefixed tokens
// win; without any, the text is split on whitespace, commas and semicolons.
// skip reports an explicit skip keyword.
func (v Vocabulary) ParseTags(text string) (tags []string, skip bool) {
	if matchesWord(text, tagSkipWords) {
		return nil, true
	}
	var tokens []string
	for _, m := range hashToken.FindAllStringSubmatch(text, -1) {
		tokens = append(tokens, m[1])
	}
	if len(tokens) == 0 {
		tokens = listSplit.Split(strings.TrimSpace(text), -1)
	}
	for _, token := range tokens {
		if tag := v.CanonicalTag(token); tag != "" && !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	return tags, false
}

// ParseParticipants extracts @handles from text. When the text has no
// @-prefixed token, bare tokens are taken as handles. Handles are returned
// lower-cased with the @ prefix.
func ParseParticipants(text string) (handles []string, skip bool) {
	if matchesWord(text, participantSkipWords) {
		return nil, true
	}
	tokens := listSplit.Split(strings.TrimSpace(text), -1)
	explicit := slices.ContainsFunc(tokens, func(tok string) bool { return strings.HasPrefix(tok, "@") })
	for _, token := range tokens {
		token = strings.TrimRight(token, ".!?:)")
		name, hasAt := strings.CutPrefix(token, "@")
		if explicit && !hasAt {
			continue
		}
		if !handlePattern.MatchString(name) {
			continue
		}
		handle := "@" + strings.ToLower(name)
		if !slices.Contains(handles, handle) {
			handles = append(handles, handle)
		}
	}
	return handles, false
}

// ParseYesNo recognises a yes/no answer. ok is false for anything else.
func ParseYesNo(text string) (value bool, ok bool) {
	switch {
	case matchesWord(text, affirmatives):
		return true, true
	case matchesWord(text, negatives):
		return false, true
	}
	return false, false
}

// ParseCommand recognises the back and restart text commands.
func ParseCommand(text string) (Action, bool) {
	switch {
	case matchesWord(text, backWords):
		return Action{Kind: ActionBack}, true
	case matchesWord(text, restartWords):
		return Action{Kind: ActionRestart}, true
	}
	return Action{}, false
}

func matchesWord(text string, words []string) bool {
	folded := strings.TrimRight(textutil.Fold(text), ".!")
	folded = strings.Join(strings.Fields(folded), " ")
	return folded != "" && slices.Contains(words, folded)
}
