package flow

import (
	"strconv"
	"strings"
)

// Country is one study destination. Name is the plain name stored in
// session data and records; Display adds the flag for message copy.
type Country struct {
	Key     string
	Name    string
	Code    string
	Display string
}

// countries is ordered; the 1-based position is the numeric menu token.
var countries = []Country{
	{Key: "uk", Name: "United Kingdom", Code: "UK", Display: "United Kingdom 🇬🇧"},
	{Key: "usa", Name: "United States", Code: "USA", Display: "United States 🇺🇸"},
	{Key: "cyprus", Name: "South Cyprus", Code: "Cyprus", Display: "South Cyprus 🇨🇾"},
	{Key: "georgia", Name: "Georgia", Code: "Georgia", Display: "Georgia 🇬🇪"},
	{Key: "sweden", Name: "Sweden", Code: "Sweden", Display: "Sweden 🇸🇪"},
	{Key: "finland", Name: "Finland", Code: "Finland", Display: "Finland 🇫🇮"},
	{Key: "south_korea", Name: "South Korea", Code: "South Korea", Display: "South Korea 🇰🇷"},
	{Key: "china", Name: "China", Code: "China", Display: "China 🇨🇳"},
	{Key: "other", Name: "Other Destinations", Code: "Other", Display: "Other Destinations 🌎"},
}

// countryByInput resolves a numeric token or a mnemonic id from a list
// reply to a destination.
func countryByInput(input string) (Country, bool) {
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(countries) {
			return countries[n-1], true
		}
		return Country{}, false
	}
	for _, c := range countries {
		if c.Key == input {
			return c, true
		}
	}
	return Country{}, false
}

// Package pricing. Costs are PKR.
const (
	costFullCourse   = 25000
	costSpeakingOnly = 15000
	costSpokenCourse = 20000
)

// packageChoice is one entry of the preparation package menu. Suffix is
// appended to the test name when labelling the enrolled course.
type packageChoice struct {
	Name   string
	Cost   int
	Suffix string
}

// packageChoices is ordered; the 1-based position is the numeric menu
// token.
var packageChoices = []packageChoice{
	{Name: "Full Preparation Course", Cost: costFullCourse},
	{Name: "Speaking Module Only", Cost: costSpeakingOnly, Suffix: " Speaking"},
}

var circledDigits = []string{"⓵", "⓶", "⓷", "⓸", "⓹", "⓺", "⓻", "⓼", "⓽"}

// packagePrompt renders the package menu for one test type.
func packagePrompt(typeID string) string {
	var b strings.Builder
	b.WriteString("Perfect! For " + testPackageNames[typeID] + ", we offer:\n\nJust type the number:\n")
	for i, c := range packageChoices {
		b.WriteString("\n" + circledDigits[i] + " " + c.Name)
	}
	return b.String()
}

// testPackageNames maps package menu ids to the copy used in the
// package offer header.
var testPackageNames = map[string]string{
	"ielts_ukvi":     "IELTS UKVI",
	"ielts_academic": "IELTS Academic",
	"ielts_general":  "IELTS General Training",
	"pte_ukvi":       "PTE UKVI",
	"pte_academic":   "PTE Academic",
	"oxford":         "Oxford ELLT",
	"language_cert":  "Language Cert ESOL",
}

// packageOffers holds the promotional copy shown before the enrollment
// form for each package type.
var packageOffers = map[string]string{
	"Full Preparation Course": "🎉 EXCLUSIVE LIMITED TIME OFFER! 🎉\n\n💰 Save PKR 7,000 Today!\n✨ Full Course: Only 25,000 PKR\n❌ Regular Price: 32,000 PKR\n\n✅ All Modules Covered\n✅ Expert Instructors\n✅ Mock Tests Included\n✅ Study Materials Provided",
	"Speaking Module Only":    "🎯 Speaking Module Specialization\n\n💰 Price: 15,000 PKR\n\n✅ Focused Practice Sessions\n✅ Expert Feedback\n✅ Score Improvement Guaranteed",
	"Spoken English Course":   "🎉 EXCLUSIVE LIMITED TIME OFFER! 🎉\n\n💰 Save PKR 5,000 Today!\n✨ Spoken English: Only 20,000 PKR\n❌ Regular Price: 25,000 PKR\n\n✅ Conversational English\n✅ Fluency Development\n✅ Confidence Building",
}

// Static copy. Kept close to the chat screens it renders.
const (
	copyGreeting = "Hey there! 👋 Welcome to INNOVA Education Consultant!\n\nI'm here to help you with your Study Abroad Journey! ✈"

	copyMainMenu = "What would you like to explore Today?\nJust type the number, I'm thrilled to help you.\n\n⓵ Study Abroad Destination.\n⓶ English Test Preparation.\n⓷ Book Counselling Session.\n⓸ About INNOVA Education Consultant."

	copyDestinationsIntro = "Fantastic choice! Studying abroad is an incredible opportunity. Let me show you the countries we specialize in:"

	copyDestinationsList = "Select a destination to explore:"

	copyTestMenu = "Great choice! Let's prepare you for success! 📚\n\nJust type the number, I'm thrilled to help you.\n\n⓵ IELTS\n⓶ PTE\n⓷ Oxford ELLT\n⓸ Language Cert ESOL\n⓹ English Spoken Course"

	copyIELTSMenu = "Excellent! Which IELTS test are you preparing for?\n\nJust type the number:\n\n⓵ IELTS UKVI\n⓶ IELTS Academic\n⓷ IELTS General Training"

	copyPTEMenu = "Excellent! Which PTE test are you preparing for?\n\nJust type the number:\n\n⓵ PTE UKVI\n⓶ PTE Academic"

	copyAboutUs = "Visit our website: https://www.innovaconsultant.com 🌟\n\nExplore our services, success stories, and more!"

	copyAboutNext = "What would you like to explore next?\n\nType the number:\n⓵ Study Abroad Destination\n⓶ English Test Preparation\n⓷ Book Counselling Session\n⓸ Main Menu"

	copyBookingCTA = "📅 Book your counselling session now:"

	copyBookingCTALabel = "Open booking page"

	copyBookingIntro = "Wonderful! Let's schedule a personalized consultation session.\n\nThis will help us understand your goals and create a tailored plan for your future.\n\nI'll need some information from you. Ready? Let's start!\n\nWhat's your first name?"

	copyBookingNext = "What would you like to do next?\n\nType the number:\n⓵ Study Abroad Destination\n⓶ English Test Preparation\n⓷ Main Menu"

	copyAgentAck = "👍 An agent will contact you shortly."

	copyMenuChaser = "Tap below to go to Main Menu"

	copyFallback = "I didn't quite understand that. Type 'menu' to see options!"
)

// formatPKR renders a fee with thousands separators, e.g. 25,000.
func formatPKR(amount int) string {
	s := strconv.Itoa(amount)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
