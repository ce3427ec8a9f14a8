package agent

import (
	"context"
	"math"
	"strings"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

var emotionLexicon = map[domain.Emotion][]string{
	domain.EmotionAnger: {
		"angry", "furious", "mad", "outraged", "annoyed", "irritated", "ridiculous",
		"unacceptable", "hate", "livid", "fed up", "sick of",
		"غاضب", "غضب", "سخيف", "غير مقبول",
	},
	domain.EmotionDistress: {
		"desperate", "urgent", "urgently", "panic", "panicking", "stressed", "overwhelmed",
		"helpless", "emergency", "asap", "please help", "can't take",
		"عاجل", "مستعجل", "ساعدوني", "يائس",
	},
	domain.EmotionSadness: {
		"sad", "unhappy", "disappointed", "upset", "unfortunately", "miserable", "let down",
		"حزين", "محبط", "خيبة",
	},
	domain.EmotionFear: {
		"worried", "afraid", "scared", "anxious", "concerned", "nervous", "hacked", "fraud",
		"قلق", "خائف",
	},
	domain.EmotionDisgust: {
		"disgusting", "gross", "terrible", "awful", "horrible", "worst", "pathetic",
		"سيء", "فظيع",
	},
	domain.EmotionJoy: {
		"happy", "great", "thanks", "thank", "love", "excellent", "awesome", "perfect",
		"wonderful", "glad", "pleased", "resolved", "works now",
		"سعيد", "شكرا", "شكراً", "ممتاز", "رائع",
	},
	domain.EmotionSurprise: {
		"wow", "surprised", "unexpected", "shocked", "suddenly",
		"مفاجأة", "فجأة",
	},
}

// Tie-break order for the dominant emotion; neutral only wins alone.
var emotionOrder = []domain.Emotion{
	domain.EmotionAnger, domain.EmotionDistress, domain.EmotionDisgust, domain.EmotionFear,
	domain.EmotionSadness, domain.EmotionSurprise, domain.EmotionJoy, domain.EmotionNeutral,
}

var (
	positiveEmotions = []domain.Emotion{domain.EmotionJoy, domain.EmotionSurprise}
	negativeEmotions = []domain.Emotion{
		domain.EmotionAnger, domain.EmotionDisgust, domain.EmotionFear,
		domain.EmotionSadness, domain.EmotionDistress,
	}
)

type toneBand struct {
	upper float64 // exclusive, except for the last band
	tone  string
}

var toneBands = []toneBand{
	{-0.65, "highly empathetic and apologetic"},
	{-0.3, "empathetic and understanding"},
	{0, "warm and supportive"},
	{0.3, "neutral and professional"},
	{0.65, "friendly and positive"},
	{math.Inf(1), "enthusiastic and celebratory"},
}

var toneOpeners = map[string]map[string]string{
	"highly empathetic and apologetic": {
		domain.LanguageEnglish: "I'm truly sorry for how this has gone.",
		domain.LanguageArabic:  "أعتذر بصدق عما حدث.",
	},
	"empathetic and understanding": {
		domain.LanguageEnglish: "I understand how frustrating this must be.",
		domain.LanguageArabic:  "أتفهم مدى الإزعاج الذي سببه هذا.",
	},
	"warm and supportive": {
		domain.LanguageEnglish: "I'm here to help.",
		domain.LanguageArabic:  "أنا هنا لمساعدتك.",
	},
}

// LocalEmotion scores messages against an emotion lexicon.
type LocalEmotion struct{}

func NewLocalEmotion() *LocalEmotion { return &LocalEmotion{} }

func (a *LocalEmotion) Invoke(ctx context.Context, in EmotionInput) (EmotionOutput, error) {
	if err := ctx.Err(); err != nil {
		return EmotionOutput{}, err
	}

	dist := EmotionDistribution(in.Message)
	score := SentimentFromEmotions(dist)
	tone := ToneFor(score)

	return EmotionOutput{
		SentimentScore:   score,
		DominantEmotion:  dominant(dist),
		Emotions:         dist,
		Tone:             tone,
		AdjustedResponse: adjustTone(in.Draft, in.Language, tone),
	}, nil
}

// EmotionDistribution returns emotion weights summing to 1. Every message
// carries one unit of neutral mass, so a single hit never dominates fully.
func EmotionDistribution(text string) map[string]float64 {
	if strings.TrimSpace(text) == "" {
		return map[string]float64{string(domain.EmotionNeutral): 1}
	}

	lower := strings.ToLower(text)
	words := tokenize(lower)

	counts := map[string]float64{string(domain.EmotionNeutral): 1}
	total := 1.0
	for emotion, keywords := range emotionLexicon {
		for _, kw := range keywords {
			if containsKeyword(lower, words, kw) {
				counts[string(emotion)]++
				total++
			}
		}
	}

	for k, v := range counts {
		counts[k] = math.Round(v/total*10000) / 10000
	}
	return counts
}

// SentimentFromEmotions is positive mass minus negative mass, clamped to [-1, 1].
func SentimentFromEmotions(dist map[string]float64) float64 {
	var pos, neg float64
	for _, e := range positiveEmotions {
		pos += dist[string(e)]
	}
	for _, e := range negativeEmotions {
		neg += dist[string(e)]
	}
	return math.Max(-1, math.Min(1, math.Round((pos-neg)*10000)/10000))
}

// ToneFor maps a sentiment score to a tone recommendation.
func ToneFor(score float64) string {
	for _, b := range toneBands {
		if score < b.upper {
			return b.tone
		}
	}
	return toneBands[len(toneBands)-1].tone
}

func dominant(dist map[string]float64) domain.Emotion {
	best := domain.EmotionNeutral
	bestScore := -1.0
	for _, e := range emotionOrder {
		if s, ok := dist[string(e)]; ok && s > bestScore {
			best, bestScore = e, s
		}
	}
	return best
}

func adjustTone(draft, lang, tone string) string {
	openers, ok := toneOpeners[tone]
	if !ok || draft == "" {
		return draft
	}
	opener, ok := openers[lang]
	if !ok {
		opener = openers[domain.LanguageEnglish]
	}
	return opener + " " + draft
}
