package agent

import (
	"context"
	"strings"
	"unicode"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

const (
	matchedConfidence  = 0.6
	fallbackConfidence = 0.3
)

type intentRule struct {
	intent   domain.Intent
	keywords []string
}

// Rules are checked in order; the first keyword hit wins.
var intentRules = []intentRule{
	{domain.IntentEscalationRequest, []string{"human", "real person", "manager", "supervisor", "speak to", "talk to someone", "agent", "موظف", "مدير", "شخص حقيقي"}},
	{domain.IntentRefundRequest, []string{"refund", "money back", "reimburse", "استرداد", "استرجاع"}},
	{domain.IntentCancellation, []string{"cancel", "terminate", "end subscription", "unsubscribe", "إلغاء"}},
	{domain.IntentBillingInquiry, []string{"bill", "billing", "invoice", "charge", "charged", "payment", "price", "فاتورة", "دفع", "رسوم"}},
	{domain.IntentTechnicalSupport, []string{"error", "bug", "crash", "crashes", "not working", "broken", "fix", "outage", "down", "عطل", "خطأ", "لا يعمل"}},
	{domain.IntentAccountManagement, []string{"account", "password", "login", "log in", "profile", "settings", "حساب", "كلمة المرور"}},
	{domain.IntentOrderStatus, []string{"order", "shipping", "delivery", "track", "tracking", "طلب", "شحن", "توصيل"}},
	{domain.IntentComplaint, []string{"complaint", "unhappy", "disappointed", "terrible", "worst", "awful", "شكوى", "سيء"}},
	{domain.IntentProductInfo, []string{"product", "feature", "plan", "pricing plan", "منتج", "ميزة"}},
	{domain.IntentFeedback, []string{"feedback", "suggestion", "suggest", "اقتراح", "ملاحظات"}},
	{domain.IntentFarewell, []string{"bye", "goodbye", "thank you", "thanks", "شكرا", "مع السلامة"}},
	{domain.IntentGreeting, []string{"hello", "hi", "hey", "good morning", "good afternoon", "مرحبا", "السلام عليكم"}},
}

var draftTemplates = map[domain.Intent]map[string]string{
	domain.IntentBillingInquiry: {
		domain.LanguageEnglish: "Thanks for your billing question. I'm checking the charges on your account now.",
		domain.LanguageArabic:  "شكراً على سؤالك حول الفاتورة. أراجع الآن الرسوم على حسابك.",
	},
	domain.IntentTechnicalSupport: {
		domain.LanguageEnglish: "Sorry about the technical trouble. Let's work through it together.",
		domain.LanguageArabic:  "نأسف للمشكلة التقنية. لنعمل على حلها معاً.",
	},
	domain.IntentAccountManagement: {
		domain.LanguageEnglish: "I can help with your account. Here is how to update it.",
		domain.LanguageArabic:  "يمكنني مساعدتك في حسابك. إليك طريقة تحديثه.",
	},
	domain.IntentProductInfo: {
		domain.LanguageEnglish: "Happy to tell you more about our products. Here are the details.",
		domain.LanguageArabic:  "يسعدنا إخبارك المزيد عن منتجاتنا. إليك التفاصيل.",
	},
	domain.IntentFeedback: {
		domain.LanguageEnglish: "Thank you for the feedback. It goes straight to the team that can act on it.",
		domain.LanguageArabic:  "شكراً على ملاحظاتك. ستصل مباشرة إلى الفريق المعني.",
	},
	domain.IntentComplaint: {
		domain.LanguageEnglish: "I'm sorry for the trouble you've had. I'll do everything I can to put it right.",
		domain.LanguageArabic:  "نعتذر عما واجهته. سأبذل كل ما بوسعي لتصحيح الأمر.",
	},
	domain.IntentEscalationRequest: {
		domain.LanguageEnglish: "Understood. I'm connecting you with a member of our support team.",
		domain.LanguageArabic:  "مفهوم. سأقوم بتحويلك إلى أحد أعضاء فريق الدعم.",
	},
	domain.IntentOrderStatus: {
		domain.LanguageEnglish: "Let me look up where your order is.",
		domain.LanguageArabic:  "دعني أتحقق من مكان طلبك.",
	},
	domain.IntentCancellation: {
		domain.LanguageEnglish: "I can help you cancel. Before I do, is there anything we could fix for you?",
		domain.LanguageArabic:  "يمكنني مساعدتك في الإلغاء. قبل ذلك، هل هناك ما يمكننا إصلاحه لك؟",
	},
	domain.IntentRefundRequest: {
		domain.LanguageEnglish: "I'll review your order and start the refund process.",
		domain.LanguageArabic:  "سأراجع طلبك وأبدأ إجراءات الاسترداد.",
	},
	domain.IntentGreeting: {
		domain.LanguageEnglish: "Hello and welcome! How can I help you today?",
		domain.LanguageArabic:  "مرحباً بك! كيف يمكنني مساعدتك اليوم؟",
	},
	domain.IntentFarewell: {
		domain.LanguageEnglish: "Thanks for getting in touch. Have a great day!",
		domain.LanguageArabic:  "شكراً لتواصلك معنا. نتمنى لك يوماً سعيداً!",
	},
	domain.IntentGeneralInquiry: {
		domain.LanguageEnglish: "Thanks for reaching out. I'll help you find an answer.",
		domain.LanguageArabic:  "شكراً لتواصلك. سأساعدك في إيجاد إجابة.",
	},
	domain.IntentUnknown: {
		domain.LanguageEnglish: "Thanks for your message. Could you share a few more details so I can help?",
		domain.LanguageArabic:  "شكراً لرسالتك. هل يمكنك مشاركة بعض التفاصيل الإضافية لأتمكن من مساعدتك؟",
	},
}

// LocalIntent classifies messages with keyword rules and drafts a reply
// from per-intent templates.
type LocalIntent struct{}

func NewLocalIntent() *LocalIntent { return &LocalIntent{} }

func (a *LocalIntent) Invoke(ctx context.Context, in IntentInput) (IntentOutput, error) {
	if err := ctx.Err(); err != nil {
		return IntentOutput{}, err
	}

	lang := DetectLanguage(in.Message)
	if in.LanguageHint == domain.LanguageEnglish || in.LanguageHint == domain.LanguageArabic {
		lang = in.LanguageHint
	}

	intent, confidence := ClassifyIntent(in.Message)
	return IntentOutput{
		Intent:        intent,
		Confidence:    confidence,
		DraftResponse: DraftFor(intent, lang),
		Language:      lang,
	}, nil
}

// ClassifyIntent returns the first matching rule's intent, general_inquiry
// when nothing matches and unknown for a blank message.
func ClassifyIntent(text string) (domain.Intent, float64) {
	if strings.TrimSpace(text) == "" {
		return domain.IntentUnknown, 0
	}

	lower := strings.ToLower(text)
	words := tokenize(lower)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if containsKeyword(lower, words, kw) {
				return rule.intent, matchedConfidence
			}
		}
	}
	return domain.IntentGeneralInquiry, fallbackConfidence
}

// DraftFor returns the template for intent in lang, falling back to English
// and then to the unknown-intent template.
func DraftFor(intent domain.Intent, lang string) string {
	tpl, ok := draftTemplates[intent]
	if !ok {
		tpl = draftTemplates[domain.IntentUnknown]
	}
	if s, ok := tpl[lang]; ok {
		return s
	}
	return tpl[domain.LanguageEnglish]
}

// DetectLanguage reports "ar" when Arabic letters outnumber Latin ones and
// "en" otherwise.
func DetectLanguage(text string) string {
	var arabic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Arabic, r) && unicode.IsLetter(r):
			arabic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if arabic > 0 && arabic >= latin {
		return domain.LanguageArabic
	}
	return domain.LanguageEnglish
}

func tokenize(s string) map[string]bool {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Single ASCII words match whole tokens so "hi" does not fire on "this".
// Phrases and Arabic keywords match as substrings since Arabic attaches
// prefixes to words.
func containsKeyword(lower string, words map[string]bool, kw string) bool {
	if strings.Contains(kw, " ") || !isASCII(kw) {
		return strings.Contains(lower, kw)
	}
	return words[kw]
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= unicode.MaxASCII {
			return false
		}
	}
	return true
}
