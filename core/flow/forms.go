package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Field is one entry of an ordered form schema. Position in the schema
// is the contract: bulk submissions are split positionally and
// sequential capture walks the same order.
type Field struct {
	Key   string
	Label string
	// Validate rejects a captured value; nil accepts anything non-blank.
	Validate func(string) bool
	// Transform normalizes the stored value, e.g. the notes sentinel.
	Transform func(string) string
}

var errTooFewLines = errors.New("flow: too few form lines")

type invalidFieldError struct {
	field Field
}

func (e *invalidFieldError) Error() string {
	return fmt.Sprintf("flow: invalid value for field %s", e.field.Key)
}

func validEmail(s string) bool {
	return strings.Contains(s, "@")
}

// studyFields is the study-abroad schema. The preferred-city label is
// parameterized by the destination code.
func studyFields(countryCode string) []Field {
	return []Field{
		{Key: "name", Label: "Your Name"},
		{Key: "whatsapp", Label: "WhatsApp Number"},
		{Key: "qualification", Label: "Last Qualification"},
		{Key: "completionYear", Label: "Last Degree Completion Year"},
		{Key: "grade", Label: "Last Degree %age/CGPA"},
		{Key: "university", Label: "Last Attended University"},
		{Key: "englishTest", Label: "Any English Test"},
		{Key: "currentCity", Label: "Your Current City"},
		{Key: "preferredCity", Label: "Preferred City in " + countryCode},
		{Key: "budget", Label: "Available Budget"},
	}
}

// enrollmentFields is the course-enrollment schema.
var enrollmentFields = []Field{
	{Key: "firstName", Label: "First Name"},
	{Key: "lastName", Label: "Last Name"},
	{Key: "email", Label: "Email Address", Validate: validEmail},
	{Key: "phone", Label: "Phone Number"},
	{Key: "startDate", Label: "Preferred Start Date"},
}

// parseBulk splits a multi-line submission positionally against the
// schema. Acceptance is all-or-nothing: too few lines or any invalid
// field rejects the whole submission with no partial data retained.
func parseBulk(fields []Field, text string) (map[string]string, error) {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) < len(fields) {
		return nil, errTooFewLines
	}

	data := make(map[string]string, len(fields))
	for i, f := range fields {
		value := lines[i]
		if f.Validate != nil && !f.Validate(value) {
			return nil, &invalidFieldError{field: f}
		}
		if f.Transform != nil {
			value = f.Transform(value)
		}
		data[f.Key] = value
	}
	return data, nil
}

// bulkEntryPrompt renders the "fill these in" message that opens a bulk
// form, listing each field as a labelled blank line.
func bulkEntryPrompt(intro string, fields []Field, outro string) string {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")
	for _, f := range fields {
		b.WriteString(f.Label)
		b.WriteString(":\n")
	}
	b.WriteString("\n")
	b.WriteString(outro)
	return b.String()
}

// bulkRetryPrompt renders the numbered re-prompt sent when a bulk
// submission arrives short.
func bulkRetryPrompt(fields []Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please provide all %d required details, one per line:\n", len(fields))
	for i, f := range fields {
		fmt.Fprintf(&b, "\n%d. %s", i+1, f.Label)
	}
	return b.String()
}

// seqField is one step of a sequential form. It reuses the bulk Field
// schema for key, validation, and transform; nextPrompt produces the
// question for the following field, personalized with data captured so
// far, and is nil on the final field.
type seqField struct {
	Field
	step       Step
	invalid    string
	nextPrompt func(data map[string]string) string
}

// bookingSeq is the consultation booking flow, one question per message.
var bookingSeq = []seqField{
	{
		Field: Field{Key: "firstName"},
		step:  StepBookingFirstName,
		nextPrompt: func(data map[string]string) string {
			return fmt.Sprintf("Wonderful, %s! And your last name?", data["firstName"])
		},
	},
	{
		Field: Field{Key: "lastName"},
		step:  StepBookingLastName,
		nextPrompt: func(map[string]string) string {
			return "Great! What's your current degree/education level?\n(e.g., 'Bachelor's in Computer Science', 'Intermediate')"
		},
	},
	{
		Field: Field{Key: "degree"},
		step:  StepBookingDegree,
		nextPrompt: func(map[string]string) string {
			return "Got it! What's your GPA or percentage?"
		},
	},
	{
		Field: Field{Key: "gpa"},
		step:  StepBookingGPA,
		nextPrompt: func(map[string]string) string {
			return "Thanks! What's your estimated budget range for studies?\n(e.g., '$20,000-$30,000', '25-35 lakh PKR', 'Need scholarship')"
		},
	},
	{
		Field: Field{Key: "budget"},
		step:  StepBookingBudget,
		nextPrompt: func(map[string]string) string {
			return "Which country are you most interested in?\n(e.g., 'UK', 'USA', 'Canada', 'Multiple options')"
		},
	},
	{
		Field: Field{Key: "preferredCountry"},
		step:  StepBookingCountry,
		nextPrompt: func(map[string]string) string {
			return "What's your email address?"
		},
	},
	{
		Field:   Field{Key: "email", Validate: validEmail},
		step:    StepBookingEmail,
		invalid: "That doesn't look like a valid email. Please try again.",
		nextPrompt: func(map[string]string) string {
			return "And finally, your phone number?\n(Include country code)"
		},
	},
	{
		Field: Field{Key: "phone"},
		step:  StepBookingPhone,
		nextPrompt: func(map[string]string) string {
			return "Would you like to share any specific questions or concerns?\n(Type 'none' if you don't have any right now)"
		},
	},
	{
		Field: Field{Key: "notes", Transform: func(s string) string {
			if strings.EqualFold(s, "none") {
				return ""
			}
			return s
		}},
		step: StepBookingNotes,
	},
}

// bookingFieldAt resolves the sequential field owning a step, plus the
// following field if any.
func bookingFieldAt(step Step) (seqField, int, bool) {
	for i, f := range bookingSeq {
		if f.step == step {
			return f, i, true
		}
	}
	return seqField{}, 0, false
}
