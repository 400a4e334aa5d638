package service

import (
	"fmt"
	"html"
	"time"
)

type mailMessage struct {
	Subject string
	HTML    string
}

func verificationMessage(name string, link string, title string) mailMessage {
	return mailMessage{
		Subject: "Verify your email address",
		HTML: fmt.Sprintf(
			"<h1>%s</h1><p>Hi %s,</p><p>Please click the following link to verify your email address:</p>"+
				"<p><a href=\"%s\">Verify Email Address</a></p>"+
				"<p>If you did not create an account, please ignore this email.</p>",
			html.EscapeString(title), html.EscapeString(name), html.EscapeString(link),
		),
	}
}

func resetCodeMessage(name string, code string, ttl time.Duration) mailMessage {
	return mailMessage{
		Subject: "Your password reset code",
		HTML: fmt.Sprintf(
			"<h1>Forgot Password</h1><p>Hi %s,</p>"+
				"<p>You have requested to reset your password. Use the following code to verify your identity and create a new password:</p>"+
				"<p style=\"font-size:32px;font-weight:bold\">%s</p>"+
				"<p>The code expires in %s. If you did not request a password reset, please ignore this email.</p>",
			html.EscapeString(name), html.EscapeString(code), ttl,
		),
	}
}

func emailChangedNotice(name string, newEmail string) mailMessage {
	return mailMessage{
		Subject: "You updated your email address",
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>The email address of your account was changed to %s.</p>"+
				"<p>If this wasn't you, reset your password immediately.</p>",
			html.EscapeString(name), html.EscapeString(newEmail),
		),
	}
}
