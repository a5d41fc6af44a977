package dispatcher

import (
	"bytes"
	"fmt"
	htmltpl "html/template"
	"strconv"
	texttpl "text/template"

	"github.com/NordCoder/Feedwatch/internal/domain/item"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
)

const timeLayout = "1/2/2006, 3:04:05 PM"

type itemView struct {
	N         int
	ID        string
	Timestamp string
	Title     string
	Details   string
}

type itemsView struct {
	Tag      string
	Items    []itemView
	Total    int
	MuteLink string
	Now      string
}

type failureView struct {
	Tag      string
	Status   string
	Error    string
	MuteLink string
	Now      string
}

type recoveryView struct {
	Tag      string
	Previous string
	Now      string
}

var (
	itemsText = texttpl.Must(texttpl.New("items").Parse(`Dear Admin,

[{{.Tag}}] The following item(s) have been detected:

{{range .Items}}{{.N}}. ID: {{.ID}}, Date: {{.Timestamp}}{{if .Title}}, Title: {{.Title}}{{end}}{{if .Details}}, Details: {{.Details}}{{end}}
{{end}}
Total Items: {{.Total}}

{{if .MuteLink}}Mute alerts (choose duration): {{.MuteLink}}{{else}}Manual mute is disabled in settings.{{end}}

Timestamp: {{.Now}}`))

	itemsHTML = htmltpl.Must(htmltpl.New("items").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; background: #f0f4f8; padding: 20px;">
<div style="max-width: 600px; margin: 0 auto; background: white; padding: 30px; border-radius: 10px;">
<h2 style="color: #0275d8; margin-top: 0;">[{{.Tag}}] Items Detected</h2>
<div style="background: #f5f5f5; padding: 15px; border-radius: 4px;">
{{range .Items}}<div style="padding: 8px; border-bottom: 1px solid #ddd; font-size: 14px;">
<strong>{{.N}}.</strong> ID: <code>{{.ID}}</code><br>
Date: {{.Timestamp}}{{if .Title}}<br>Title: {{.Title}}{{end}}{{if .Details}}<br>Details: {{.Details}}{{end}}
</div>
{{end}}</div>
<p><strong>Total Items:</strong> {{.Total}}</p>
{{if .MuteLink}}<p style="text-align: center;"><a href="{{.MuteLink}}" style="background: #0275d8; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Open Mute Controls</a></p>
{{else}}<p style="color: #495057;">Manual mute is disabled in settings.</p>
{{end}}<p style="font-size: 12px; color: #999;">System Time: {{.Now}}</p>
</div>
</body>
</html>`))

	failureText = texttpl.Must(texttpl.New("failure").Parse(`[{{.Tag}}] API failure detected. Status: {{.Status}}. Error: {{.Error}}.

{{if .MuteLink}}Mute alerts: {{.MuteLink}}{{else}}Manual mute is disabled in settings.{{end}}`))

	failureHTML = htmltpl.Must(htmltpl.New("failure").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; background: #f0f4f8; padding: 20px;">
<div style="max-width: 600px; margin: 0 auto; background: white; padding: 30px; border-radius: 10px;">
<h2 style="color: #d9534f; margin-top: 0;">[{{.Tag}}] API Service Failure</h2>
<div style="background: #f5f5f5; padding: 15px; font-family: monospace;">
<strong>Status:</strong> {{.Status}}<br>
<strong>Error:</strong> {{.Error}}
</div>
{{if .MuteLink}}<p style="text-align: center;"><a href="{{.MuteLink}}" style="background: #d9534f; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Mute Failure Alerts</a></p>
{{else}}<p style="color: #495057;">Manual mute is turned off in settings.</p>
{{end}}<p style="font-size: 12px; color: #999;">System Time: {{.Now}}</p>
</div>
</body>
</html>`))

	recoveryHTML = htmltpl.Must(htmltpl.New("recovery").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; background: #f0f4f8; padding: 20px;">
<div style="max-width: 600px; margin: 0 auto; background: white; padding: 30px; border-radius: 10px;">
<h2 style="color: #28a745; margin-top: 0;">[{{.Tag}}] API Service Recovered</h2>
<p><strong>Recovered at:</strong> {{.Now}}</p>
<p><strong>Previous issue:</strong> {{.Previous}}</p>
<p style="font-size: 12px; color: #999;">No action required.</p>
</div>
</body>
</html>`))
)

// SMSText is the count-based summary sent to every phone number.
func SMSText(tag string, n int) string {
	return fmt.Sprintf("[%s] Notification: %d item(s) detected. Please check the system.", tag, n)
}

func itemsSubject(tag string, n int) string {
	return fmt.Sprintf("[%s] Notification: %d Item(s)", tag, n)
}

func failureSubject(status int) string {
	if status == 0 {
		return "API FAILURE: No Status"
	}
	return "API FAILURE: " + strconv.Itoa(status)
}

const recoverySubject = "✓ API RECOVERED"

func statusText(status int) string {
	if status == 0 {
		return "N/A"
	}
	return strconv.Itoa(status)
}

func newItemsView(tag string, items []item.Item, muteLink, now string) itemsView {
	v := itemsView{Tag: tag, Total: len(items), MuteLink: muteLink, Now: now}
	for i, it := range items {
		v.Items = append(v.Items, itemView{
			N:         i + 1,
			ID:        orNA(item.Text(it.ID)),
			Timestamp: orNA(item.Text(it.Timestamp)),
			Title:     item.Text(it.Title),
			Details:   item.Text(it.Details),
		})
	}
	return v
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func render(text *texttpl.Template, html *htmltpl.Template, data any) (string, string, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("render text: %w", err)
	}
	if html != nil {
		if err := html.Execute(&hb, data); err != nil {
			return "", "", fmt.Errorf("render html: %w", err)
		}
	}
	return tb.String(), hb.String(), nil
}

func itemsEmail(tag string, items []item.Item, muteLink, now string) (notification.Email, error) {
	text, html, err := render(itemsText, itemsHTML, newItemsView(tag, items, muteLink, now))
	if err != nil {
		return notification.Email{}, err
	}
	return notification.Email{Subject: itemsSubject(tag, len(items)), Text: text, HTML: html}, nil
}

func failureEmail(v failureView, status int) (notification.Email, error) {
	text, html, err := render(failureText, failureHTML, v)
	if err != nil {
		return notification.Email{}, err
	}
	return notification.Email{Subject: failureSubject(status), Text: text, HTML: html}, nil
}

func recoveryEmail(v recoveryView) (notification.Email, error) {
	var hb bytes.Buffer
	if err := recoveryHTML.Execute(&hb, v); err != nil {
		return notification.Email{}, fmt.Errorf("render html: %w", err)
	}
	text := fmt.Sprintf("[%s] API recovered at %s. Previous error: %s.", v.Tag, v.Now, v.Previous)
	return notification.Email{Subject: recoverySubject, Text: text, HTML: hb.String()}, nil
}
