// ABOUTME: Repair detector decides when the companion should ask the child to clarify
// ABOUTME: Pure function of utterance, recognition confidence and the previous turn
package core

import (
	"fmt"
	"strings"

	"github.com/harper/companion-engine/internal/models"
)

const (
	lowConfidenceThreshold  = 0.6
	contextSimilarityCutoff = 0.6
	phonemeSimilarityCutoff = 0.7
	maxRepairSuggestions    = 3
	shortUtteranceWordLimit = 2
	threeWayChoiceMinAge    = 7
)

// RepairContext is what the detector knows about the conversation so far.
type RepairContext struct {
	// LastAIResponse is the previous companion reply; empty at session start.
	LastAIResponse string
	// ExpectShortAnswer is set when a game is running or the last reply was a
	// question, so one- or two-word answers are expected.
	ExpectShortAnswer bool
	Interests         []string
	Topics            []string
	Age               int
}

var explicitCorrections = []string{
	"i said", "i meant", "i mean", "no no", "not that", "that's not what", "you didn't hear",
	"that's wrong", "wrong", "you're not listening", "didn't say that",
}

// allowedShortTokens are real one- and two-letter words.
var allowedShortTokens = map[string]bool{
	"a": true, "i": true, "am": true, "an": true, "as": true, "at": true, "be": true, "by": true,
	"do": true, "go": true, "he": true, "hi": true, "if": true, "in": true, "is": true, "it": true,
	"me": true, "my": true, "no": true, "of": true, "oh": true, "ok": true, "on": true, "or": true,
	"so": true, "to": true, "up": true, "us": true, "we": true, "ya": true, "yo": true, "ha": true,
	"uh": true, "um": true, "hm": true, "mm": true, "ah": true, "aw": true, "ow": true, "tv": true,
}

// contractionSuffixes follow the apostrophe in common English contractions.
var contractionSuffixes = map[string]bool{
	"m": true, "d": true, "s": true, "t": true, "re": true, "ve": true, "ll": true,
}

// realRunWords are common words that would otherwise trip the letter-run rules.
var realRunWords = map[string]bool{
	"beautiful": true, "quiet": true, "queue": true, "curious": true, "delicious": true,
	"serious": true, "furious": true, "various": true, "previous": true, "obvious": true,
	"strength": true, "strengths": true, "lengths": true, "twelfth": true, "eighths": true,
	"ooh": true, "aaah": true, "hmm": true, "shh": true, "brrr": true, "zzz": true,
}

// childSpeech maps common early-speech forms to their targets.
var childSpeech = map[string]string{
	"wabbit": "rabbit", "pasghetti": "spaghetti", "sketti": "spaghetti", "aminal": "animal",
	"fwog": "frog", "wion": "lion", "tewwible": "terrible", "bwue": "blue", "pwease": "please",
	"wuv": "love", "lellow": "yellow", "dinosaw": "dinosaur", "hangaberger": "hamburger",
	"ephelant": "elephant", "bewwy": "belly", "twain": "train", "fwend": "friend",
	"pwincess": "princess", "gwass": "grass", "sowwy": "sorry", "wunning": "running",
}

// phoneticConfusions maps misheard tokens to candidate intended words.
var phoneticConfusions = map[string][]string{
	"fink":   {"think"},
	"bery":   {"very"},
	"dat":    {"that"},
	"dis":    {"this"},
	"toof":   {"tooth"},
	"pway":   {"play"},
	"tat":    {"cat", "that"},
	"wight":  {"right", "white"},
	"wun":    {"run", "one"},
	"dod":    {"dog"},
	"gween":  {"green"},
	"yewwow": {"yellow"},
	"fwee":   {"free", "three"},
}

// commonVocabulary is the fallback word list for phoneme-folded matching.
var commonVocabulary = []string{
	"play", "game", "story", "song", "sing", "dance", "draw", "color", "read", "book",
	"water", "hungry", "thirsty", "sleep", "tired", "happy", "sad", "scared", "funny", "joke",
	"again", "more", "stop", "help", "friend", "mommy", "daddy", "school", "teacher", "home",
	"outside", "park", "toy", "ball", "car", "train", "truck", "bike", "puzzle", "blocks",
	"yes", "please", "thank", "sorry", "hello", "goodbye", "favorite", "because", "what", "why",
}

// DetectRepair decides whether the utterance needs a clarification turn.
func DetectRepair(utterance string, sttConfidence float64, rc RepairContext) models.RepairInfo {
	info := models.RepairInfo{Indicators: map[models.RepairIndicator]bool{}}
	norm := normalize(utterance)
	toks := strings.Fields(norm)

	if sttConfidence < lowConfidenceThreshold {
		info.Indicators[models.IndicatorLowConfidence] = true
	}
	for _, phrase := range explicitCorrections {
		if containsWord(norm, phrase) {
			info.Indicators[models.IndicatorExplicit] = true
			break
		}
	}
	for _, tok := range toks {
		if isNonsensical(tok) {
			info.Indicators[models.IndicatorNonsensical] = true
			break
		}
	}
	if len(toks) > 0 && len(toks) <= shortUtteranceWordLimit && rc.LastAIResponse != "" && !rc.ExpectShortAnswer {
		info.Indicators[models.IndicatorShortCorrection] = true
	}
	for _, tok := range toks {
		if _, ok := childSpeech[tok]; ok {
			info.Indicators[models.IndicatorChildSpeech] = true
		}
		if _, ok := phoneticConfusions[tok]; ok {
			info.Indicators[models.IndicatorPhonetic] = true
		}
	}

	if len(info.Indicators) == 0 {
		info.Indicators = nil
		return info
	}

	info.Needed = true
	info.Type = repairType(info)
	info.Suggestions = repairSuggestions(toks, rc)
	info.Response = repairResponse(info.Type, info.Suggestions, rc.Age)
	return info
}

func repairType(info models.RepairInfo) models.RepairType {
	switch {
	case info.Has(models.IndicatorExplicit):
		return models.RepairExplicit
	case info.Has(models.IndicatorLowConfidence):
		return models.RepairLowConfidence
	case info.Has(models.IndicatorNonsensical):
		return models.RepairNonsensical
	case info.Has(models.IndicatorShortCorrection):
		return models.RepairShortCorrection
	case info.Has(models.IndicatorChildSpeech), info.Has(models.IndicatorPhonetic):
		return models.RepairPattern
	default:
		return models.RepairGeneral
	}
}

func repairSuggestions(toks []string, rc RepairContext) []string {
	original := strings.Join(toks, " ")
	var out []string
	add := func(s string) bool {
		if s == "" || s == original {
			return false
		}
		for _, existing := range out {
			if existing == s {
				return false
			}
		}
		out = append(out, s)
		return len(out) >= maxRepairSuggestions
	}

	// whole-utterance child-speech substitution
	corrected := make([]string, len(toks))
	for i, tok := range toks {
		if target, ok := childSpeech[tok]; ok {
			corrected[i] = target
		} else {
			corrected[i] = tok
		}
	}
	if add(strings.Join(corrected, " ")) {
		return out
	}

	// per-token phonetic expansion
	for i, tok := range toks {
		for _, alt := range phoneticConfusions[tok] {
			if add(replaceAt(toks, i, alt)) {
				return out
			}
		}
	}

	// context words: interests and discussed topics
	contextWords := append(topicWords(rc.Interests), topicWords(rc.Topics)...)
	for i, tok := range toks {
		if len(tok) < 3 {
			continue
		}
		for _, word := range contextWords {
			if word != tok && Similarity(tok, word) > contextSimilarityCutoff {
				if add(replaceAt(toks, i, word)) {
					return out
				}
			}
		}
	}

	// phoneme-folded scan against everyday words
	for i, tok := range toks {
		if len(tok) < 3 || isCommonWord(tok) {
			continue
		}
		folded := FoldPhonemes(tok)
		for _, word := range commonVocabulary {
			if Similarity(folded, FoldPhonemes(word)) > phonemeSimilarityCutoff {
				if add(replaceAt(toks, i, word)) {
					return out
				}
			}
		}
	}
	return out
}

func repairResponse(kind models.RepairType, suggestions []string, age int) string {
	switch len(suggestions) {
	case 0:
		if kind == models.RepairExplicit {
			return "Oops, sorry about that! Can you tell me again?"
		}
		return "I didn't quite catch that. Could you say it again?"
	case 1:
		return fmt.Sprintf("Did you mean %q?", suggestions[0])
	case 2:
		return fmt.Sprintf("Did you mean %q or %q?", suggestions[0], suggestions[1])
	default:
		if age < threeWayChoiceMinAge {
			return fmt.Sprintf("Did you mean %q?", suggestions[0])
		}
		return fmt.Sprintf("Did you mean %q, %q, or %q?", suggestions[0], suggestions[1], suggestions[2])
	}
}

// isNonsensical flags tokens that do not look like words.
func isNonsensical(tok string) bool {
	word := tok
	if stem, suffix, ok := strings.Cut(tok, "'"); ok {
		if !contractionSuffixes[suffix] {
			return isNonsensical(stem + suffix)
		}
		// contractions are judged by their stem: i'm, we'd, don't
		word = stem
	}
	if word == "" || realRunWords[word] || !isAlpha(word) {
		return false
	}
	if len(word) <= 2 {
		return !allowedShortTokens[word]
	}
	if hasRepeatedRun(word, 3) {
		return true
	}

	consonants, vowels := 0, 0
	for _, r := range digraphs.Replace(word) {
		switch {
		case r == 'y':
			// y is neither vowel nor consonant here; it breaks both runs
			consonants, vowels = 0, 0
		case strings.ContainsRune("aeiou", r):
			vowels++
			consonants = 0
		default:
			consonants++
			vowels = 0
		}
		if consonants >= 4 || vowels >= 3 {
			return true
		}
	}
	return false
}

// digraphs count as a single consonant sound in the run check.
var digraphs = strings.NewReplacer("th", "#", "ch", "#", "sh", "#", "ph", "#", "wh", "#", "ck", "#", "ng", "#", "gh", "#")

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isCommonWord(tok string) bool {
	for _, w := range commonVocabulary {
		if w == tok {
			return true
		}
	}
	return allowedShortTokens[tok]
}

func replaceAt(toks []string, i int, word string) string {
	out := make([]string, len(toks))
	copy(out, toks)
	out[i] = word
	return strings.Join(out, " ")
}
