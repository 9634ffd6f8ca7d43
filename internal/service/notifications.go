package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/clearance-api/internal/models"
)

// Notifications renders the student-facing emails queued through the outbox.
type Notifications struct {
	institution string
}

// NewNotifications builds the templates for institution.
func NewNotifications(institution string) *Notifications {
	if strings.TrimSpace(institution) == "" {
		institution = "Ajayi Crowther University"
	}
	return &Notifications{institution: institution}
}

// Welcome is sent after self-registration.
func (n *Notifications) Welcome(student *models.User) *models.NotificationIntent {
	return n.message(student,
		fmt.Sprintf("Welcome to %s Final Year Clearance Portal", n.institution),
		fmt.Sprintf("Welcome to the %s Final Year Clearance Portal. "+
			"This platform has been designed to simplify and streamline your clearance process.", n.institution),
		"You can now complete your departmental clearance, upload required documents, "+
			"and track your approval status in real time.",
		"We wish you a smooth and successful clearance process.",
	)
}

// Submitted confirms a first submission.
func (n *Notifications) Submitted(student *models.User) *models.NotificationIntent {
	return n.message(student,
		"Clearance Submission Received - Under Review",
		fmt.Sprintf("This is to confirm that your final year clearance submission has been "+
			"successfully received on the %s Clearance Portal.", n.institution),
		"Your application is currently under review by the respective departments. "+
			"You will receive a notification once the review process has been completed "+
			"or if any further action is required from you.",
		"Kindly ensure you monitor your email and dashboard regularly for updates.",
	)
}

// Resubmitted confirms a resubmission that went back to stage.
func (n *Notifications) Resubmitted(student *models.User, stage models.Department) *models.NotificationIntent {
	return n.message(student,
		"Resubmission Received - Clearance Under Review",
		fmt.Sprintf("This is to confirm that your updated clearance documents have been successfully "+
			"received on the %s Final Year Clearance Portal.", n.institution),
		fmt.Sprintf("Your resubmission is currently under review by %s. "+
			"You will be notified once a decision has been made.", stage.Name),
		"Thank you for your prompt action and cooperation.",
	)
}

// Advanced tells the student one stage approved and the next is reviewing.
func (n *Notifications) Advanced(student *models.User, approvedBy, next models.Department) *models.NotificationIntent {
	return n.message(student,
		"Department Clearance Approved - Proceeding to Next Stage",
		fmt.Sprintf("We are pleased to inform you that your clearance has been successfully approved by %s.", approvedBy.Name),
		fmt.Sprintf("Your application has now been forwarded to %s for review "+
			"as part of the final year clearance process.", next.Name),
		"Kindly continue to monitor your clearance portal for further updates regarding your progress.",
	)
}

// Completed announces full approval.
func (n *Notifications) Completed(student *models.User) *models.NotificationIntent {
	return n.message(student,
		"Final Year Clearance Completed",
		"We are pleased to inform you that every department has approved your final year clearance.",
		"You can now download your clearance certificate from the portal.",
		"Congratulations on completing your clearance.",
	)
}

// Rejected tells the student which stage declined and why.
func (n *Notifications) Rejected(student *models.User, stage models.Department, comment string) *models.NotificationIntent {
	feedback := "Kindly log in to the Final Year Clearance Portal to review the feedback " +
		"provided and take the necessary corrective action."
	if c := strings.TrimSpace(comment); c != "" {
		feedback = fmt.Sprintf("Feedback from %s: %s\n\n%s", stage.Name, c, feedback)
	}
	return n.message(student,
		"Clearance Update: Submission Not Approved",
		fmt.Sprintf("We regret to inform you that your recent clearance submission has not been approved by %s.", stage.Name),
		feedback,
		"You may update and resubmit your documents once the required adjustments have been made.",
	)
}

func (n *Notifications) message(student *models.User, subject string, paragraphs ...string) *models.NotificationIntent {
	if student == nil || student.Email == "" {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", student.FullName)
	for _, p := range paragraphs {
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Best regards,\nOffice of the Registrar,\n%s", n.institution)
	return &models.NotificationIntent{To: student.Email, Subject: subject, Body: b.String()}
}
