// ABOUTME: Challenge generators for each micro-game type
// ABOUTME: Every generator returns a question, an expected answer, accepted answers and a hint
package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

type answerSet struct {
	prompt  string
	answers []string
}

var rhymeBank = []answerSet{
	{"cat", []string{"hat", "bat", "mat", "rat", "sat", "flat"}},
	{"dog", []string{"log", "frog", "fog", "jog", "hog"}},
	{"sun", []string{"fun", "run", "bun", "one", "done"}},
	{"bee", []string{"tree", "see", "me", "free", "three", "knee"}},
	{"star", []string{"car", "far", "jar", "bar"}},
	{"cake", []string{"lake", "make", "snake", "bake", "take"}},
	{"ball", []string{"tall", "wall", "fall", "call", "small"}},
	{"moon", []string{"spoon", "soon", "balloon", "noon", "tune"}},
}

var animalSounds = []answerSet{
	{"cow", []string{"moo"}},
	{"dog", []string{"woof", "bark", "ruff"}},
	{"cat", []string{"meow", "miaow", "purr"}},
	{"duck", []string{"quack"}},
	{"sheep", []string{"baa"}},
	{"pig", []string{"oink"}},
	{"lion", []string{"roar"}},
	{"owl", []string{"hoo", "hoot"}},
	{"horse", []string{"neigh"}},
	{"snake", []string{"hiss"}},
	{"bee", []string{"buzz"}},
	{"frog", []string{"ribbit", "croak"}},
}

var colorObjects = []answerSet{
	{"banana", []string{"yellow"}},
	{"frog", []string{"green"}},
	{"clear sky", []string{"blue"}},
	{"strawberry", []string{"red"}},
	{"carrot", []string{"orange"}},
	{"snowman", []string{"white"}},
	{"crow", []string{"black"}},
	{"elephant", []string{"gray", "grey"}},
	{"chocolate bar", []string{"brown"}},
	{"leaf", []string{"green"}},
	{"fire truck", []string{"red"}},
	{"grape", []string{"purple", "green"}},
}

type riddle struct {
	question string
	answers  []string
	hint     string
}

var riddleBank = []riddle{
	{"What has hands but can't clap?", []string{"clock", "watch"}, "It tells you the time."},
	{"What has a face and two hands but no arms or legs?", []string{"clock"}, "It ticks."},
	{"What gets wetter the more it dries?", []string{"towel"}, "You use it after a bath."},
	{"What has keys but can't open locks?", []string{"piano", "keyboard"}, "You can play music on it."},
	{"What has legs but doesn't walk?", []string{"table", "chair"}, "You sit at it for dinner."},
	{"What goes up but never comes down?", []string{"age"}, "It changes on your birthday."},
	{"What has one eye but can't see?", []string{"needle"}, "It is used for sewing."},
	{"What is full of holes but still holds water?", []string{"sponge"}, "You wash dishes with it."},
}

var storyStarters = []string{
	"Once upon a time, a tiny dragon found a magic paintbrush. What did the dragon paint first?",
	"A friendly robot woke up in a jungle. What did it see?",
	"A puppy found a secret door in the garden. Where did it lead?",
	"An astronaut landed on a planet made of candy. What happened next?",
	"A little fish wanted to fly. How did it try?",
}

var recallPool = []string{
	"apple", "ball", "cat", "drum", "egg", "flower", "guitar", "hat", "kite", "lemon",
	"moon", "nest", "orange", "pencil", "rocket", "star", "train", "umbrella",
}

var associationBank = []answerSet{
	{"sun", []string{"hot", "bright", "yellow", "sky", "day", "light", "summer", "warm"}},
	{"water", []string{"wet", "drink", "swim", "ocean", "rain", "sea", "river", "fish"}},
	{"winter", []string{"cold", "snow", "ice", "coat", "snowman", "christmas"}},
	{"school", []string{"teacher", "book", "class", "friends", "learn", "pencil", "bag"}},
	{"birthday", []string{"cake", "party", "presents", "gift", "candles", "balloons"}},
	{"ocean", []string{"fish", "waves", "blue", "water", "shark", "whale", "beach", "sand"}},
	{"night", []string{"dark", "moon", "stars", "sleep", "bed", "owl"}},
}

// BreathingCompletionWords are the replies that count as finishing a breathing round.
var BreathingCompletionWords = []string{
	"done", "finished", "ok", "okay", "yes", "did it", "i did", "ready", "calm", "better", "yeah",
}

var numberWords = []string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
	"eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen",
	"nineteen", "twenty",
}

func numberAnswers(n int) []string {
	out := []string{strconv.Itoa(n)}
	if n >= 0 && n < len(numberWords) {
		out = append(out, numberWords[n])
	}
	return out
}

// GenerateChallenge builds the next challenge of the given type at a
// difficulty between 1 and 3.
func GenerateChallenge(gameType models.GameType, difficulty int, rng capability.RNG) models.Challenge {
	difficulty = clampDifficulty(difficulty)
	switch gameType {
	case models.GameMathQuiz:
		return mathChallenge(difficulty, rng)
	case models.GameRhymeTime:
		set := rhymeBank[rng.IntN(len(rhymeBank))]
		return models.Challenge{
			Question:       fmt.Sprintf("What word rhymes with %q?", set.prompt),
			ExpectedAnswer: set.answers[0],
			Accept:         set.answers,
			Type:           gameType,
			Hint:           fmt.Sprintf("Think of a word that ends like %q, like %q.", set.prompt, set.answers[len(set.answers)-1]),
		}
	case models.GameBreathing:
		counts := 2 + difficulty
		return models.Challenge{
			Question:       fmt.Sprintf("Let's breathe together. Breathe in slowly for %d... hold... and breathe out for %d. Say \"done\" when you finish!", counts, counts),
			ExpectedAnswer: "done",
			Accept:         BreathingCompletionWords,
			Type:           gameType,
			Hint:           "Just breathe in and out slowly, then tell me \"done\".",
		}
	case models.GameAnimalSounds:
		set := animalSounds[rng.IntN(len(animalSounds))]
		return models.Challenge{
			Question:       fmt.Sprintf("What sound does a %s make?", set.prompt),
			ExpectedAnswer: set.answers[0],
			Accept:         set.answers,
			Type:           gameType,
			Hint:           fmt.Sprintf("It starts with %q.", set.answers[0][:1]),
		}
	case models.GameColorHunt:
		set := colorObjects[rng.IntN(len(colorObjects))]
		return models.Challenge{
			Question:       fmt.Sprintf("What color is a %s?", set.prompt),
			ExpectedAnswer: set.answers[0],
			Accept:         set.answers,
			Type:           gameType,
			Hint:           fmt.Sprintf("It starts with %q.", set.answers[0][:1]),
		}
	case models.GameRiddle:
		r := riddleBank[rng.IntN(len(riddleBank))]
		return models.Challenge{
			Question:       r.question,
			ExpectedAnswer: r.answers[0],
			Accept:         r.answers,
			Type:           gameType,
			Hint:           r.hint,
		}
	case models.GameStoryBuilder:
		return models.Challenge{
			Question: storyStarters[rng.IntN(len(storyStarters))],
			Type:     gameType,
			Hint:     "Anything you imagine is perfect!",
		}
	case models.GameMemoryRecall:
		items := pickDistinct(recallPool, 2+difficulty, rng)
		list := strings.Join(items, ", ")
		return models.Challenge{
			Question:       fmt.Sprintf("Remember these: %s. Now tell me all of them!", list),
			ExpectedAnswer: list,
			Items:          items,
			Type:           gameType,
			Hint:           "The items were " + joinAnd(items) + ".",
		}
	case models.GameCounting:
		step := difficulty
		start := 1 + rng.IntN(5*difficulty)
		seq := []string{strconv.Itoa(start), strconv.Itoa(start + step), strconv.Itoa(start + 2*step)}
		next := start + 3*step
		return models.Challenge{
			Question:       fmt.Sprintf("Let's count! %s... what comes next?", strings.Join(seq, ", ")),
			ExpectedAnswer: strconv.Itoa(next),
			Accept:         numberAnswers(next),
			Type:           gameType,
			Hint:           fmt.Sprintf("Add %d to %d.", step, start+2*step),
		}
	case models.GameWordAssociation:
		set := associationBank[rng.IntN(len(associationBank))]
		return models.Challenge{
			Question:       fmt.Sprintf("What's a word that goes with %q?", set.prompt),
			ExpectedAnswer: set.answers[0],
			Accept:         set.answers,
			Type:           gameType,
			Hint:           fmt.Sprintf("What do you think of when you hear %q? Maybe %q?", set.prompt, set.answers[1]),
		}
	default:
		return models.Challenge{Question: "Tell me something fun!", Type: gameType, Hint: "Anything works!"}
	}
}

func mathChallenge(difficulty int, rng capability.RNG) models.Challenge {
	var a, b, answer int
	var op string
	switch difficulty {
	case 1:
		a, b = 1+rng.IntN(5), 1+rng.IntN(5)
		op, answer = "+", a+b
	case 2:
		a, b = 1+rng.IntN(10), 1+rng.IntN(10)
		if rng.IntN(2) == 0 {
			op, answer = "+", a+b
		} else {
			if b > a {
				a, b = b, a
			}
			op, answer = "-", a-b
		}
	default:
		a, b = 2+rng.IntN(9), 2+rng.IntN(4)
		op, answer = "x", a*b
	}
	return models.Challenge{
		Question:       fmt.Sprintf("What is %d %s %d?", a, op, b),
		ExpectedAnswer: strconv.Itoa(answer),
		Accept:         numberAnswers(answer),
		Type:           models.GameMathQuiz,
		Hint:           mathHint(op, a, b),
	}
}

func mathHint(op string, a, b int) string {
	switch op {
	case "+":
		return fmt.Sprintf("Start at %d and count up %d more.", a, b)
	case "-":
		return fmt.Sprintf("Start at %d and count down %d.", a, b)
	default:
		return fmt.Sprintf("Add %d together %d times.", a, b)
	}
}

func clampDifficulty(d int) int {
	switch {
	case d < 1:
		return 1
	case d > maxDifficulty:
		return maxDifficulty
	default:
		return d
	}
}

func pickDistinct(pool []string, n int, rng capability.RNG) []string {
	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out = append(out, pool[idx[i]])
	}
	return out
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}
