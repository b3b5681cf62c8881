// ABOUTME: Fixed topic categories detected in children's utterances
// ABOUTME: Shared by memory aggregation and repair suggestions
package core

// TopicCategory is one of the fixed interest categories.
type TopicCategory struct {
	Name     string
	Keywords []string
}

// TopicCategories lists the eight categories in a stable order.
var TopicCategories = []TopicCategory{
	{"animals", []string{"animal", "animals", "dog", "cat", "puppy", "kitten", "lion", "tiger", "elephant", "bird", "fish", "rabbit", "horse", "monkey", "frog"}},
	{"space", []string{"space", "planet", "planets", "star", "stars", "moon", "sun", "rocket", "astronaut", "mars", "galaxy", "alien"}},
	{"dinosaurs", []string{"dinosaur", "dinosaurs", "dino", "t-rex", "trex", "raptor", "fossil", "triceratops", "stegosaurus"}},
	{"sports", []string{"football", "soccer", "cricket", "basketball", "tennis", "swim", "swimming", "race", "ball", "goal", "team"}},
	{"music", []string{"music", "song", "songs", "sing", "singing", "dance", "dancing", "piano", "guitar", "drum", "drums"}},
	{"food", []string{"food", "eat", "pizza", "ice", "cream", "cake", "apple", "banana", "cookie", "lunch", "dinner", "breakfast", "snack"}},
	{"family", []string{"mom", "mommy", "mum", "dad", "daddy", "papa", "mama", "sister", "brother", "grandma", "grandpa", "nani", "dadi", "family", "baby"}},
	{"school", []string{"school", "teacher", "class", "homework", "friend", "friends", "read", "reading", "math", "learn", "book", "books"}},
}

// DetectTopics returns the categories mentioned in text, in table order.
func DetectTopics(text string) []string {
	toks := tokens(text)
	var found []string
	for _, cat := range TopicCategories {
		if anyToken(toks, cat.Keywords) {
			found = append(found, cat.Name)
		}
	}
	return found
}

func anyToken(toks, words []string) bool {
	for _, tok := range toks {
		for _, w := range words {
			if tok == w {
				return true
			}
		}
	}
	return false
}

// topicWords flattens the keywords of the named categories; unknown names
// are treated as literal words.
func topicWords(names []string) []string {
	var words []string
	for _, name := range names {
		matched := false
		for _, cat := range TopicCategories {
			if cat.Name == name {
				words = append(words, cat.Keywords...)
				matched = true
			}
		}
		if !matched && name != "" {
			words = append(words, name)
		}
	}
	return words
}
