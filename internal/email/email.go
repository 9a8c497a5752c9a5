package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/golang/glog"
)

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func NewSender(host, port, username, password, from string) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

var welcomeTemplate = template.Must(template.New("welcome").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #6200ee; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Welcome, {{.Username}}!</h1>
        </div>
        <div class="content">
            <p>Your account is ready. Sign in with <code>socialctl login {{.Username}}</code>
            to see your feed, chats and servers.</p>
            <p>If you didn't create an account, you can safely ignore this email.</p>
        </div>
        <div class="footer">
            <p>socialsync</p>
        </div>
    </div>
</body>
</html>
`))

// Compose renders the full message, headers included.
func (s *Sender) Compose(to, username string) ([]byte, error) {
	var body bytes.Buffer
	if err := welcomeTemplate.Execute(&body, map[string]string{"Username": username}); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	var msg bytes.Buffer
	// fixed order keeps the output stable
	for _, h := range [][2]string{
		{"From", s.From},
		{"To", to},
		{"Subject", "Welcome to socialsync"},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=\"UTF-8\""},
	} {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// SendWelcomeEmail mails a new user. Without a configured host the message
// is only logged.
func (s *Sender) SendWelcomeEmail(to, username string) error {
	message, err := s.Compose(to, username)
	if err != nil {
		return err
	}

	if s.Host == "" {
		glog.Infof("email: no SMTP host, not sending welcome mail to %s", to)
		glog.V(2).Infof("email: %s", message)
		return nil
	}

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return smtp.SendMail(addr, auth, s.From, []string{to}, message)
}
