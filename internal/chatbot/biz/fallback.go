package biz

import "fmt"

// Guidance answers returned before any category pipeline is consulted.
const (
	// GuidanceInvalidCategory is returned when the requested category is
	// missing or unknown.
	GuidanceInvalidCategory = "Please select a valid category first from the available options."

	// GuidanceEmptyQuery is returned when the question is empty or whitespace.
	GuidanceEmptyQuery = "Please provide a question or message."
)

// genericFallbackAnswer covers categories without a dedicated fallback entry.
const genericFallbackAnswer = "I apologize, but I'm having trouble accessing the specific information right now. Please contact MQA directly at enquiry@mqa.gov.my or visit https://www.mqa.gov.my for assistance."

// fallbackAnswers maps each category to its canned answer. These are served
// verbatim whenever the pipeline cannot produce a grounded answer, so every
// entry points the user at a real MQA contact channel.
var fallbackAnswers = map[string]string{
	"accreditation":  "For accreditation inquiries, please visit the MQA accreditation portal or contact accreditation@mqa.gov.my. You can find more information at https://www.mqa.gov.my.",
	"framework":      "The Malaysian Qualifications Framework (MQF) is available on the official MQA website. Visit https://www.mqa.gov.my for detailed information about MQF levels and standards.",
	"qualifications": "For qualification standards and program development guidelines, please refer to the MQF handbook available at https://www.mqa.gov.my or contact qualifications@mqa.gov.my.",
	"recognition":    "For recognition of qualifications, please contact recognition@mqa.gov.my or visit https://www.mqa.gov.my/recognition for application procedures.",
	"equivalency":    "For qualification equivalency assessments, please visit https://www.mqa.gov.my/equivalency or contact equivalency@mqa.gov.my.",
	"apel":           "For APEL (Accreditation of Prior Experiential Learning) inquiries, please visit https://www.mqa.gov.my/apel or contact apel@mqa.gov.my.",
	"faq":            "For frequently asked questions, please check the MQA FAQ section at https://www.mqa.gov.my/faq or contact enquiry@mqa.gov.my for specific inquiries.",
}

// FallbackAnswer returns the canned answer for category, or the generic
// answer when the category has no dedicated entry.
func FallbackAnswer(category string) string {
	if answer, ok := fallbackAnswers[category]; ok {
		return answer
	}
	return genericFallbackAnswer
}

// StoreUnavailableAnswer is returned when the category exists but its vector
// store could not be opened or holds no documents.
func StoreUnavailableAnswer(category string) string {
	return fmt.Sprintf("Database not available for %s. Please try another category.", category)
}
