package search

// phoneticGroups clusters Gurmukhi characters the transcriber confuses:
// vowel sign neighbours, voiced/unvoiced stop pairs, aspirated pairs, and
// sibilants. Substituting within a group costs half a normal edit.
var phoneticGroups = [][]rune{
	{'ਿ', 'ੇ', 'ੈ'}, // i, e, ai vowel signs
	{'ਕ', 'ਗ'},      // k, g
	{'ਤ', 'ਦ'},      // t, d
	{'ਪ', 'ਬ'},      // p, b
	{'ਚ', 'ਛ'},      // ch, chh
	{'ਟ', 'ਠ'},      // retroflex t, th
	{'ਸ', 'ਸ਼'}, // s, sh
}

var phoneticClass = buildPhoneticClass()

func buildPhoneticClass() map[rune]int {
	m := make(map[rune]int)
	for i, group := range phoneticGroups {
		for _, r := range group {
			m[r] = i
		}
	}
	return m
}

// phoneticallySimilar reports whether two runes belong to the same
// confusable group.
func phoneticallySimilar(a, b rune) bool {
	ca, ok := phoneticClass[a]
	if !ok {
		return false
	}
	cb, ok := phoneticClass[b]
	return ok && ca == cb
}

// WeightedEditSimilarity returns 1 - d/maxLen where d is the Levenshtein
// distance with phonetic substitutions costing 0.5. Symmetric, bounded to
// [0,1], and total: two empty strings are identical.
func WeightedEditSimilarity(s1, s2 string) float64 {
	r1 := []rune(s1)
	r2 := []rune(s2)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 && len2 == 0 {
		return 1.0
	}

	prev := make([]float64, len2+1)
	cur := make([]float64, len2+1)
	for j := 0; j <= len2; j++ {
		prev[j] = float64(j)
	}
	for i := 1; i <= len1; i++ {
		cur[0] = float64(i)
		for j := 1; j <= len2; j++ {
			if r1[i-1] == r2[j-1] {
				cur[j] = prev[j-1]
				continue
			}
			subst := 1.0
			if phoneticallySimilar(r1[i-1], r2[j-1]) {
				subst = 0.5
			}
			cur[j] = minf(prev[j]+1, cur[j-1]+1, prev[j-1]+subst)
		}
		prev, cur = cur, prev
	}

	maxLen := len1
	if len2 > maxLen {
		maxLen = len2
	}
	return 1.0 - prev[len2]/float64(maxLen)
}

func minf(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
