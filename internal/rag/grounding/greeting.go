package grounding

import (
	"strings"
	"unicode"
)

// greetings maps normalized chit-chat to the language it is written in.
var greetings = map[string]string{
	"hi": "en", "hello": "en", "hey": "en", "hello there": "en", "hi there": "en",
	"good morning": "en", "good afternoon": "en", "good evening": "en",
	"thanks": "en", "thank you": "en", "thank you so much": "en", "ok": "en", "okay": "en",
	"bye": "en", "goodbye": "en", "how are you": "en", "who are you": "en",
	"namaste": "hi", "namaskar": "hi", "नमस्ते": "hi", "धन्यवाद": "hi", "शुक्रिया": "hi",
	"नमस्कार": "mr", "आभार": "mr",
	"bonjour": "fr", "salut": "fr", "merci": "fr",
	"hola": "es", "gracias": "es", "buenos dias": "es", "buenos días": "es",
	"hallo": "de", "guten tag": "de", "danke": "de",
	"你好": "zh", "谢谢": "zh",
	"مرحبا": "ar", "شكرا": "ar", "السلام عليكم": "ar",
}

var greetingReplies = map[string]string{
	"en": "Hello! Ask me a question about the documents published for your jurisdiction and I will answer from them.",
	"hi": "नमस्ते! अपने क्षेत्राधिकार के लिए प्रकाशित दस्तावेज़ों के बारे में प्रश्न पूछें, मैं उन्हीं से उत्तर दूँगा।",
	"mr": "नमस्कार! तुमच्या अधिकारक्षेत्रासाठी प्रकाशित दस्तऐवजांबद्दल प्रश्न विचारा, मी त्यांतूनच उत्तर देईन.",
	"fr": "Bonjour ! Posez une question sur les documents publiés pour votre juridiction et j'y répondrai à partir de ceux-ci.",
	"es": "¡Hola! Haga una pregunta sobre los documentos publicados para su jurisdicción y responderé a partir de ellos.",
	"de": "Hallo! Stellen Sie eine Frage zu den für Ihre Zuständigkeit veröffentlichten Dokumenten, ich antworte anhand dieser.",
	"zh": "您好！请就您所在辖区发布的文件提问，我会根据这些文件作答。",
	"ar": "مرحبا! اطرح سؤالا عن الوثائق المنشورة لولايتك القضائية وسأجيب منها.",
}

// matchGreeting reports whether the whole query is a greeting and which language it is in.
func matchGreeting(query string) (string, bool) {
	lang, ok := greetings[normalizeGreeting(query)]
	return lang, ok
}

func normalizeGreeting(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.Join(fields, " ")
}
