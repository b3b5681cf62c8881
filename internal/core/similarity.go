// ABOUTME: Ratcliff/Obershelp string similarity and phoneme folding
// ABOUTME: Used by repair suggestions to match misheard words against known vocabulary
package core

import "strings"

// Similarity returns the Ratcliff/Obershelp ratio 2*M/T of two strings,
// where M is the number of matched runes and T the total rune count.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ra, rb)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, size := longestCommon(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingRunes(a[:i], b[:j]) + matchingRunes(a[i+size:], b[j+size:])
}

// longestCommon finds the longest common substring, preferring the earliest
// position in a and then in b.
func longestCommon(a, b []rune) (int, int, int) {
	bestI, bestJ, bestSize := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bestSize {
					bestSize = cur[j]
					bestI, bestJ = i-cur[j], j-cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, bestSize
}

var phonemeFolds = strings.NewReplacer(
	"ph", "f",
	"th", "f",
	"ck", "k",
	"gh", "g",
	"wh", "w",
	"kn", "n",
	"wr", "r",
	"c", "k",
	"q", "k",
	"z", "s",
	"v", "f",
	"w", "r",
	"l", "r",
	"d", "t",
	"b", "p",
)

// FoldPhonemes collapses sounds young children commonly swap so that
// misarticulated words compare close to their targets.
func FoldPhonemes(word string) string {
	folded := phonemeFolds.Replace(strings.ToLower(word))
	var b strings.Builder
	var prev rune
	for _, r := range folded {
		if r != prev {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}
