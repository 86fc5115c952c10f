package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/example/teesched/internal/task"
)

func outcomeTask() task.Task {
	return task.Task{
		ID:          "t-1",
		Credentials: task.Credentials{Username: "golfer", Password: "secret-pw"},
		Params: task.Parameters{
			Course: 3, Players: 4, Holes: 18,
			TimeStart: "07:00", TimeEnd: "10:00",
		},
		TargetDate: "2026-09-05",
	}
}

func TestOutcomeSuccess(t *testing.T) {
	subject, body := Outcome(outcomeTask(), "9:15 AM", nil)
	if !strings.Contains(subject, "acquired") {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(body, "9:15 AM") {
		t.Fatalf("body missing slot label: %q", body)
	}
}

func TestOutcomeFailureMentionsOpenSession(t *testing.T) {
	subject, body := Outcome(outcomeTask(), "", errors.New("no bookable slots found"))
	if !strings.Contains(subject, "failed") {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(body, "left open") {
		t.Fatalf("body = %q", body)
	}
}

func TestOutcomeNeverContainsCredentials(t *testing.T) {
	for _, err := range []error{nil, errors.New("login rejected")} {
		subject, body := Outcome(outcomeTask(), "7:30 AM", err)
		for _, leak := range []string{"golfer", "secret-pw"} {
			if strings.Contains(subject, leak) || strings.Contains(body, leak) {
				t.Fatalf("credential %q leaked into mail", leak)
			}
		}
	}
}
