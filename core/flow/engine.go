// Package flow implements the conversational state machine. Transition
// is pure: it mutates only the session it is given and expresses all
// provider I/O as returned messages, so the engine tests without a live
// transport.
package flow

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/innovaedu/wabot/core/recorder"
	"github.com/innovaedu/wabot/core/session"
	"github.com/innovaedu/wabot/core/whatsapp"
)

const defaultBookingURL = "https://innovaconsultant.com/testing/study-in-united-kingdom/"

var greetingKeywords = []string{"hi", "hello", "start", "menu", "help"}

// Options tunes engine behaviour.
type Options struct {
	// GreetingResetsForms lets the greeting shortcut fire while a form
	// step is collecting literal text. Off by default.
	GreetingResetsForms bool
	// BookingURL is the counselling page linked from the booking flow.
	BookingURL string
	// Now is the record timestamp source, injectable for tests.
	Now func() time.Time
}

// Result is the outcome of one transition: the ordered outbound
// sequence and, on form completion, the record to persist.
type Result struct {
	Messages []whatsapp.Message
	Record   *recorder.Record
}

// Engine drives the per-step transition table.
type Engine struct {
	opts Options
}

// New constructs an engine.
func New(opts Options) *Engine {
	if opts.BookingURL == "" {
		opts.BookingURL = defaultBookingURL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts}
}

// Transition advances the session for one normalized input and returns
// the messages to deliver in order. messageID is the provider id of the
// inbound message; the welcome greeting is sent as a contextual reply
// to it. Every input yields a defined outcome; invalid selections
// re-prompt and leave the step unchanged.
func (e *Engine) Transition(sess *session.Session, input, messageID string) Result {
	lower := strings.ToLower(strings.TrimSpace(input))

	var res Result
	switch {
	case lower == "main_menu":
		res = e.welcome(sess, messageID)
	case lower == "talk_to_agent" || lower == "live_agent" || lower == "agent":
		res = textResult(copyAgentAck)
	case e.greetingAllowed(sess.Step) && containsGreeting(lower):
		res = e.welcome(sess, messageID)
	default:
		res = e.dispatch(sess, input, lower, messageID)
	}

	// One main-menu button trails every response, except right after the
	// welcome sequence which already ends at the main menu.
	if sess.SuppressMenuOnce {
		sess.SuppressMenuOnce = false
	} else {
		res.Messages = append(res.Messages, whatsapp.ButtonMessage(copyMenuChaser,
			whatsapp.Button{ID: "main_menu", Title: "Main Menu"}))
	}
	return res
}

func (e *Engine) greetingAllowed(step Step) bool {
	if KindOf(step) != KindForm {
		return true
	}
	return e.opts.GreetingResetsForms
}

func containsGreeting(lower string) bool {
	for _, k := range greetingKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (e *Engine) dispatch(sess *session.Session, raw, lower, messageID string) Result {
	switch sess.Step {
	case StepWelcome:
		return e.welcome(sess, messageID)
	case StepMainMenu:
		return e.mainMenu(sess, lower)
	case StepSelectCountry:
		return e.selectCountry(sess, lower)
	case StepStudyAbroadForm:
		return e.studyAbroadForm(sess, raw)
	case StepSelectTestType:
		return e.selectTestType(sess, lower)
	case StepSelectIELTSType:
		return e.selectIELTSType(sess, lower)
	case StepSelectPTEType:
		return e.selectPTEType(sess, lower)
	case StepSelectPackage:
		return e.selectPackage(sess, lower)
	case StepEnrollmentForm:
		return e.enrollmentForm(sess, raw)
	case StepAfterStudyAbroad:
		return e.afterStudyAbroad(sess, lower)
	case StepAfterEnrollment:
		return e.afterEnrollment(sess, lower)
	case StepAfterBooking:
		return e.afterBooking(sess, lower)
	case StepAfterAbout:
		return e.afterAbout(sess, lower)
	}
	if _, _, ok := bookingFieldAt(sess.Step); ok {
		return e.bookingStep(sess, raw)
	}
	return textResult(copyFallback)
}

func (e *Engine) welcome(sess *session.Session, messageID string) Result {
	sess.Step = StepMainMenu
	sess.Data = make(map[string]string)
	sess.SuppressMenuOnce = true
	greeting := whatsapp.Text(copyGreeting)
	greeting.ReplyTo = messageID
	return Result{Messages: []whatsapp.Message{
		greeting,
		whatsapp.ButtonMessage(copyMainMenu,
			whatsapp.Button{ID: "talk_to_agent", Title: "Talk to an agent"}),
	}}
}

func (e *Engine) mainMenu(sess *session.Session, lower string) Result {
	switch lower {
	case "1":
		return e.showDestinations(sess)
	case "2":
		sess.Step = StepSelectTestType
		return textResult(copyTestMenu)
	case "3":
		return e.startBooking(sess)
	case "4":
		sess.Step = StepAfterAbout
		return textResult(copyAboutUs, copyAboutNext)
	}
	return textResult("Please type a number between 1-4 to continue.")
}

func (e *Engine) showDestinations(sess *session.Session) Result {
	rows := make([]whatsapp.Row, len(countries))
	for i, c := range countries {
		rows[i] = whatsapp.Row{ID: c.Key, Title: c.Display}
	}
	sess.Step = StepSelectCountry
	return Result{Messages: []whatsapp.Message{
		whatsapp.Text(copyDestinationsIntro),
		whatsapp.ListMessage(copyDestinationsList, "Choose Country",
			whatsapp.Section{Title: "Study Destinations", Rows: rows}),
	}}
}

func (e *Engine) selectCountry(sess *session.Session, lower string) Result {
	c, ok := countryByInput(lower)
	if !ok {
		return textResult("Please type a number between 1-9.")
	}
	sess.Step = StepStudyAbroadForm
	sess.Data = map[string]string{"country": c.Name, "countryCode": c.Code}
	return textResult(
		"Great choice! "+c.Display,
		bulkEntryPrompt(
			"Please share the details below for our record and Quick assessment.",
			studyFields(c.Code),
			"📝 Please provide all details in order, one per line (except name can be first and last name on same line).",
		),
	)
}

func (e *Engine) studyAbroadForm(sess *session.Session, raw string) Result {
	fields := studyFields(sess.Data["countryCode"])
	data, err := parseBulk(fields, raw)
	if err != nil {
		return textResult(bulkRetryPrompt(fields))
	}
	data["country"] = sess.Data["country"]

	rec := e.newRecord("SA", recorder.KindStudyAbroad, data)
	sess.Step = StepAfterStudyAbroad
	sess.Data = make(map[string]string)
	res := textResult(
		studyConfirmation(rec.ID, data),
		"What happens next?\n\n✓ Our counselors will review your profile\n✓ We'll contact you within 24 hours on WhatsApp\n✓ Discuss university options and admission process\n✓ Guide you through visa requirements\n\nWe're excited to help you achieve your study abroad dreams! 🎯",
	)
	res.Record = &rec
	return res
}

func (e *Engine) selectTestType(sess *session.Session, lower string) Result {
	switch lower {
	case "1":
		sess.Step = StepSelectIELTSType
		return textResult(copyIELTSMenu)
	case "2":
		sess.Step = StepSelectPTEType
		return textResult(copyPTEMenu)
	case "3":
		return e.showPackages(sess, "oxford", "Oxford ELLT")
	case "4":
		return e.showPackages(sess, "language_cert", "Language Cert ESOL")
	case "5":
		return e.startEnrollment(sess, "Spoken English Course", costSpokenCourse, "English Spoken Course")
	}
	return textResult("Please type a number between 1-5.")
}

func (e *Engine) selectIELTSType(sess *session.Session, lower string) Result {
	subtype := map[string]string{"1": "ielts_ukvi", "2": "ielts_academic", "3": "ielts_general"}[lower]
	if subtype == "" {
		return textResult("Please type 1, 2, or 3.")
	}
	return e.showPackages(sess, subtype, "IELTS")
}

func (e *Engine) selectPTEType(sess *session.Session, lower string) Result {
	subtype := map[string]string{"1": "pte_ukvi", "2": "pte_academic"}[lower]
	if subtype == "" {
		return textResult("Please type 1 or 2.")
	}
	return e.showPackages(sess, subtype, "PTE")
}

func (e *Engine) showPackages(sess *session.Session, typeID, testName string) Result {
	sess.Step = StepSelectPackage
	sess.Data = map[string]string{"testName": testName}
	return textResult(packagePrompt(typeID))
}

func (e *Engine) selectPackage(sess *session.Session, lower string) Result {
	n, err := strconv.Atoi(lower)
	if err != nil || n < 1 || n > len(packageChoices) {
		return textResult("Please type 1 or 2.")
	}
	choice := packageChoices[n-1]
	testName := sess.Data["testName"]
	return e.startEnrollment(sess, choice.Name, choice.Cost, testName+choice.Suffix)
}

func (e *Engine) startEnrollment(sess *session.Session, packageType string, cost int, courseName string) Result {
	sess.Step = StepEnrollmentForm
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	sess.Data["packageType"] = packageType
	sess.Data["cost"] = strconv.Itoa(cost)
	sess.Data["courseName"] = courseName
	return textResult(
		packageOffers[packageType],
		bulkEntryPrompt(
			"Ready to get started? Please provide your details:",
			enrollmentFields,
			"📝 Please provide all details in order, one per line.",
		),
	)
}

func (e *Engine) enrollmentForm(sess *session.Session, raw string) Result {
	data, err := parseBulk(enrollmentFields, raw)
	if err != nil {
		var badField *invalidFieldError
		if errors.As(err, &badField) {
			return textResult("The email address doesn't look valid. Please provide all details again with a valid email.")
		}
		return textResult(bulkRetryPrompt(enrollmentFields))
	}
	data["courseName"] = sess.Data["courseName"]
	data["packageType"] = sess.Data["packageType"]
	data["cost"] = sess.Data["cost"]

	rec := e.newRecord("ENR", recorder.KindEnrollment, data)
	sess.Step = StepAfterEnrollment
	sess.Data = make(map[string]string)
	res := textResult(
		enrollmentConfirmation(rec.ID, data),
		"What happens next?\n\n✓ Our team will contact you within 24 hours\n✓ We'll schedule your first session\n✓ You'll receive study materials\n✓ Payment details via email\n\nWe're excited to help you succeed! 🎯",
	)
	res.Record = &rec
	return res
}

func (e *Engine) startBooking(sess *session.Session) Result {
	sess.Step = StepBookingFirstName
	sess.Data = make(map[string]string)
	return Result{Messages: []whatsapp.Message{
		whatsapp.CTAMessage(copyBookingCTA, copyBookingCTALabel, e.opts.BookingURL),
		whatsapp.Text(copyBookingIntro),
	}}
}

func (e *Engine) bookingStep(sess *session.Session, raw string) Result {
	f, i, ok := bookingFieldAt(sess.Step)
	if !ok {
		return textResult(copyFallback)
	}
	value := strings.TrimSpace(raw)
	if f.Validate != nil && !f.Validate(value) {
		return textResult(f.invalid)
	}
	if f.Transform != nil {
		value = f.Transform(value)
	}
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	sess.Data[f.Key] = value

	if i == len(bookingSeq)-1 {
		data := make(map[string]string, len(sess.Data))
		for k, v := range sess.Data {
			data[k] = v
		}
		rec := e.newRecord("APP", recorder.KindConsultation, data)
		sess.Step = StepAfterBooking
		sess.Data = make(map[string]string)
		res := textResult(
			bookingConfirmation(rec.ID, data),
			"What's next?\n\n✓ Our counselor will review your profile\n✓ We'll contact you within 24-48 hours\n✓ Schedule detailed consultation\n✓ Receive tailored university recommendations\n\nWe're thrilled to be part of your journey!",
			copyBookingNext,
		)
		res.Record = &rec
		return res
	}

	sess.Step = bookingSeq[i+1].step
	return textResult(f.nextPrompt(sess.Data))
}

func (e *Engine) afterStudyAbroad(sess *session.Session, lower string) Result {
	switch lower {
	case "1":
		return e.showDestinations(sess)
	case "2":
		sess.Step = StepSelectTestType
		return textResult(copyTestMenu)
	case "3":
		return e.welcome(sess, "")
	}
	return textResult("Please type 1, 2, or 3.")
}

func (e *Engine) afterEnrollment(sess *session.Session, lower string) Result {
	switch lower {
	case "1":
		return e.showDestinations(sess)
	case "2":
		return e.startBooking(sess)
	case "3":
		return e.welcome(sess, "")
	}
	return textResult("Please type 1, 2, or 3.")
}

func (e *Engine) afterBooking(sess *session.Session, lower string) Result {
	switch lower {
	case "1":
		return e.showDestinations(sess)
	case "2":
		sess.Step = StepSelectTestType
		return textResult(copyTestMenu)
	case "3":
		return e.welcome(sess, "")
	}
	return textResult("Please type 1, 2, or 3.")
}

func (e *Engine) afterAbout(sess *session.Session, lower string) Result {
	switch lower {
	case "1":
		return e.showDestinations(sess)
	case "2":
		sess.Step = StepSelectTestType
		return textResult(copyTestMenu)
	case "3":
		return e.startBooking(sess)
	case "4":
		return e.welcome(sess, "")
	}
	return textResult("Please type a number between 1-4.")
}

func textResult(bodies ...string) Result {
	msgs := make([]whatsapp.Message, len(bodies))
	for i, b := range bodies {
		msgs[i] = whatsapp.Text(b)
	}
	return Result{Messages: msgs}
}
