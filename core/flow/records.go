package flow

import (
	"fmt"
	"strconv"

	"github.com/innovaedu/wabot/core/recorder"
)

func (e *Engine) newRecord(prefix string, kind recorder.Kind, fields map[string]string) recorder.Record {
	now := e.opts.Now()
	return recorder.Record{
		ID:          fmt.Sprintf("%s%d", prefix, now.UnixMilli()),
		Kind:        kind,
		Fields:      fields,
		SubmittedAt: now,
	}
}

func studyConfirmation(id string, data map[string]string) string {
	return fmt.Sprintf(
		"✅ Your application has been submitted successfully!\n\n📋 Application ID: %s\n👤 Name: %s\n🌍 Destination: %s\n🎓 Qualification: %s\n🏛️ University: %s\n💰 Budget: %s",
		id, data["name"], data["country"], data["qualification"], data["university"], data["budget"],
	)
}

func enrollmentConfirmation(id string, data map[string]string) string {
	course := data["courseName"]
	if course == "" {
		course = data["packageType"]
	}
	cost, _ := strconv.Atoi(data["cost"])
	return fmt.Sprintf(
		"✅ Your enrollment has been confirmed!\n\n📋 Enrollment ID: %s\n👤 Name: %s %s\n📚 Course: %s\n💰 Fee: PKR %s\n📅 Preferred Start: %s",
		id, data["firstName"], data["lastName"], course, formatPKR(cost), data["startDate"],
	)
}

func bookingConfirmation(id string, data map[string]string) string {
	return fmt.Sprintf(
		"✅ Your consultation session has been booked!\n\n📋 Application ID: %s\n👤 Name: %s %s\n🎓 Education: %s\n📊 GPA: %s\n💰 Budget: %s\n🌍 Country: %s",
		id, data["firstName"], data["lastName"], data["degree"], data["gpa"], data["budget"], data["preferredCountry"],
	)
}
