package flow

import "github.com/innovaedu/wabot/core/session"

// Step aliases the session step type so the engine can be the single
// owner of the step enumeration.
type Step = session.Step

const (
	StepWelcome         = session.StepWelcome
	StepMainMenu        Step = "main_menu"
	StepSelectCountry   Step = "select_country"
	StepStudyAbroadForm Step = "study_abroad_form"
	StepSelectTestType  Step = "select_test_type"
	StepSelectIELTSType Step = "select_ielts_type"
	StepSelectPTEType   Step = "select_pte_type"
	StepSelectPackage   Step = "select_package"
	StepEnrollmentForm  Step = "enrollment_form"

	StepBookingFirstName Step = "booking_first_name"
	StepBookingLastName  Step = "booking_last_name"
	StepBookingDegree    Step = "booking_degree"
	StepBookingGPA       Step = "booking_gpa"
	StepBookingBudget    Step = "booking_budget"
	StepBookingCountry   Step = "booking_country"
	StepBookingEmail     Step = "booking_email"
	StepBookingPhone     Step = "booking_phone"
	StepBookingNotes     Step = "booking_notes"

	StepAfterStudyAbroad Step = "after_study_abroad"
	StepAfterEnrollment  Step = "after_enrollment"
	StepAfterBooking     Step = "after_booking_link"
	StepAfterAbout       Step = "after_about"
)

// Kind partitions steps by the input they await.
type Kind int

const (
	// KindMenu awaits a bounded numeric or id selection.
	KindMenu Kind = iota
	// KindForm awaits literal free text, bulk or one field at a time.
	KindForm
	// KindAfter is a follow-up menu reached after completing a flow.
	KindAfter
)

// stepKinds covers the full enumeration. Steps absent here are unknown
// and handled by the fallback prompt.
var stepKinds = map[Step]Kind{
	StepWelcome:         KindMenu,
	StepMainMenu:        KindMenu,
	StepSelectCountry:   KindMenu,
	StepSelectTestType:  KindMenu,
	StepSelectIELTSType: KindMenu,
	StepSelectPTEType:   KindMenu,
	StepSelectPackage:   KindMenu,

	StepStudyAbroadForm: KindForm,
	StepEnrollmentForm:  KindForm,

	StepBookingFirstName: KindForm,
	StepBookingLastName:  KindForm,
	StepBookingDegree:    KindForm,
	StepBookingGPA:       KindForm,
	StepBookingBudget:    KindForm,
	StepBookingCountry:   KindForm,
	StepBookingEmail:     KindForm,
	StepBookingPhone:     KindForm,
	StepBookingNotes:     KindForm,

	StepAfterStudyAbroad: KindAfter,
	StepAfterEnrollment:  KindAfter,
	StepAfterBooking:     KindAfter,
	StepAfterAbout:       KindAfter,
}

// Valid reports whether the step belongs to the closed enumeration.
func Valid(step Step) bool {
	_, ok := stepKinds[step]
	return ok
}

// KindOf returns the kind of a known step. Unknown steps report KindMenu
// so the greeting shortcut still works for them.
func KindOf(step Step) Kind {
	if k, ok := stepKinds[step]; ok {
		return k
	}
	return KindMenu
}

// Steps returns the full enumeration, for tests and diagnostics.
func Steps() []Step {
	out := make([]Step, 0, len(stepKinds))
	for step := range stepKinds {
		out = append(out, step)
	}
	return out
}
