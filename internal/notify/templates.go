package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var layout = template.Must(template.New("mail").Parse(`<!doctype html>
<html lang="tr"><body style="font-family:Arial,sans-serif;color:#1f2937">
<p>Merhaba {{.Name}},</p>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .Link}}<p><a href="{{.Link}}">{{.LinkText}}</a></p>{{end}}
<p>7P Education ekibi</p>
</body></html>`))

type mailBody struct {
	Name       string
	Paragraphs []string
	Link       string
	LinkText   string
}

func render(to, name, subject string, body mailBody) (Message, error) {
	if body.Name == "" {
		body.Name = "değerli öğrencimiz"
	}
	var html bytes.Buffer
	if err := layout.Execute(&html, body); err != nil {
		return Message{}, fmt.Errorf("rendering email: %w", err)
	}

	var text bytes.Buffer
	fmt.Fprintf(&text, "Merhaba %s,\n\n", body.Name)
	for _, p := range body.Paragraphs {
		text.WriteString(p + "\n\n")
	}
	if body.Link != "" {
		text.WriteString(body.Link + "\n\n")
	}
	text.WriteString("7P Education ekibi\n")

	return Message{ToEmail: to, ToName: name, Subject: subject, Text: text.String(), HTML: html.String()}, nil
}

func EnrollmentWelcome(to, name, courseTitle, courseURL string) (Message, error) {
	return render(to, name, fmt.Sprintf("%s kursuna hoş geldiniz", courseTitle), mailBody{
		Name:       name,
		Paragraphs: []string{fmt.Sprintf("%s kursuna kaydınız tamamlandı. Hemen öğrenmeye başlayabilirsiniz.", courseTitle)},
		Link:       courseURL,
		LinkText:   "Kursa git",
	})
}

func PaymentReceipt(to, name, courseTitle string, amount float64, currency string) (Message, error) {
	return render(to, name, "Ödemeniz alındı", mailBody{
		Name: name,
		Paragraphs: []string{
			fmt.Sprintf("%s için %.2f %s tutarındaki ödemeniz başarıyla alındı.", courseTitle, amount, currency),
			"Bu e-posta ödeme makbuzunuz yerine geçer.",
		},
	})
}

func CertificateIssued(to, name, courseTitle, certificateNumber, certificatesURL string) (Message, error) {
	return render(to, name, "Tebrikler, sertifikanız hazır", mailBody{
		Name: name,
		Paragraphs: []string{
			fmt.Sprintf("%s kursunu tamamladınız.", courseTitle),
			fmt.Sprintf("Sertifika numaranız: %s", certificateNumber),
		},
		Link:     certificatesURL,
		LinkText: "Sertifikalarım",
	})
}
