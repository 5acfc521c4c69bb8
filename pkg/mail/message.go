package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

const base64LineLength = 76

// buildMessage renders msg as a multipart/mixed RFC 5322 message.
func buildMessage(from mail.Address, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	body := multipart.NewWriter(&buf)

	headers := []struct{ key, value string }{
		{"From", from.String()},
		{"To", (&mail.Address{Address: msg.To}).String()},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from.Address))},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/mixed; boundary=" + body.Boundary()},
	}
	var head bytes.Buffer
	for _, h := range headers {
		head.WriteString(h.key)
		head.WriteString(": ")
		head.WriteString(h.value)
		head.WriteString("\r\n")
	}
	head.WriteString("\r\n")

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=UTF-8")
	htmlHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := body.CreatePart(htmlHeader)
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(msg.HTMLBody)); err != nil {
		return nil, fmt.Errorf("encode html part: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode html part: %w", err)
	}

	for _, attachment := range msg.Attachments {
		contentType := attachment.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", contentType)
		header.Set("Content-Transfer-Encoding", "base64")
		header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename}))
		part, err := body.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create attachment part: %w", err)
		}
		if err := writeBase64Lines(part, attachment.Content); err != nil {
			return nil, fmt.Errorf("encode attachment %s: %w", attachment.Filename, err)
		}
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

func writeBase64Lines(w interface{ Write([]byte) (int, error) }, content []byte) error {
	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 0 {
		n := base64LineLength
		if len(encoded) < n {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
