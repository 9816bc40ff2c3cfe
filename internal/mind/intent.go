package mind

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Intent is a coarse classification of a user message.
type Intent string

const (
	IntentHostile      Intent = "hostile"
	IntentProvoke      Intent = "provoke"
	IntentAffectionate Intent = "affectionate"
	IntentFarewell     Intent = "farewell"
	IntentGiftHigh     Intent = "gift_high"
	IntentGiftFood     Intent = "gift_food"
	IntentComforting   Intent = "comforting"
)

// IntentSet is an unordered set of intents.
type IntentSet map[Intent]struct{}

func (s IntentSet) Has(i Intent) bool {
	_, ok := s[i]
	return ok
}

func (s IntentSet) add(i Intent) { s[i] = struct{}{} }

// Provoking reports whether the message counts toward the provocation streak.
func (s IntentSet) Provoking() bool { return s.Has(IntentHostile) || s.Has(IntentProvoke) }

// Gift reports whether the message carries any gift.
func (s IntentSet) Gift() bool { return s.Has(IntentGiftHigh) || s.Has(IntentGiftFood) }

// Sorted lists the intents in a stable order for logs and results.
func (s IntentSet) Sorted() []Intent {
	out := make([]Intent, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// IntentClassifier turns free text into intents.
type IntentClassifier interface {
	Classify(text string) IntentSet
}

// KeywordClassifier tags a message with every intent whose keyword list
// matches. ASCII keywords only match on word boundaries; other scripts match
// as plain substrings.
type KeywordClassifier struct {
	Keywords map[Intent][]string
}

// NewKeywordClassifier uses DefaultKeywords when table is nil.
func NewKeywordClassifier(table map[Intent][]string) *KeywordClassifier {
	if table == nil {
		table = DefaultKeywords()
	}
	return &KeywordClassifier{Keywords: table}
}

// Classify implements IntentClassifier. A hostile or provoking goodbye is
// treated as hostility, so farewell is dropped when either is present.
func (c *KeywordClassifier) Classify(text string) IntentSet {
	set := IntentSet{}
	lower := strings.ToLower(text)
	for intent, words := range c.Keywords {
		for _, w := range words {
			if containsKeyword(lower, strings.ToLower(w)) {
				set.add(intent)
				break
			}
		}
	}
	if set.Provoking() {
		delete(set, IntentFarewell)
	}
	return set
}

// DefaultKeywords is the stock keyword table, English plus the Chinese
// vocabulary the persona's fans tend to use.
func DefaultKeywords() map[Intent][]string {
	return map[Intent][]string{
		IntentHostile: {
			"hate you", "stupid", "idiot", "ugly", "shut up", "trash", "get lost", "go away",
			"disgusting", "moron", "dumb", "loser", "annoying", "useless", "go die",
			"讨厌", "笨", "傻", "丑", "闭嘴", "垃圾", "滚", "骂", "坏", "去死", "恶心", "蠢",
			"没脑子", "弱智", "白痴", "有病", "神经", "智障", "废物", "烦", "别说话",
		},
		IntentProvoke: {
			"don't like you", "fooled", "better than you", "bad taste", "don't want you",
			"fake", "boring", "overrated",
			"不喜欢你", "被骗", "不如我", "眼光差", "不要你", "被绿", "虚伪", "无聊",
		},
		IntentAffectionate: {
			"love you", "i love", "kiss", "marry", "darling", "sweetheart", "miss you",
			"hug", "cuddle", "adore",
			"老婆", "亲亲", "结婚", "爱", "宝贝", "想你", "贴贴", "抱抱", "喜欢",
		},
		IntentFarewell: {
			"good night", "goodnight", "goodbye", "bye", "see you", "gotta go", "going to sleep",
			"晚安", "再见", "拜拜", "睡了", "走了",
		},
		IntentGiftHigh: {
			"limited edition", "exclusive", "rare", "gem", "jewel", "script", "mora",
			"限量版", "特供", "绝版", "宝石", "剧本", "摩拉",
		},
		IntentGiftFood: {
			"cake", "dessert", "milk tea", "macaron", "black tea", "macaroni", "snack",
			"treat you", "dinner", "something tasty",
			"蛋糕", "甜点", "奶茶", "马卡龙", "红茶", "通心粉", "点心", "好吃的", "吃饭", "请你",
		},
		IntentComforting: {
			"tired", "get some rest", "lean on me", "don't cry", "sorry", "apologize",
			"don't be angry", "it's okay", "i'm here",
			"辛苦", "累吗", "休息", "依靠", "别哭", "对不起", "抱歉", "别生气", "没事的", "我在",
		},
	}
}

// containsKeyword reports whether kw occurs in text. Edges of kw that are
// ASCII letters must not touch another letter in text.
func containsKeyword(text, kw string) bool {
	if kw == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(kw)
	last, _ := utf8.DecodeLastRuneInString(kw)
	checkLeft := isASCIILetter(first)
	checkRight := isASCIILetter(last)

	for from := 0; from < len(text); {
		idx := strings.Index(text[from:], kw)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(kw)
		ok := true
		if checkLeft && start > 0 {
			r, _ := utf8.DecodeLastRuneInString(text[:start])
			ok = !unicode.IsLetter(r)
		}
		if ok && checkRight && end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[end:])
			ok = !unicode.IsLetter(r)
		}
		if ok {
			return true
		}
		from = start + 1
	}
	return false
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
