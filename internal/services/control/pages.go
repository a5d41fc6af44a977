package control

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/NordCoder/Feedwatch/internal/services/scheduler"
	"github.com/dustin/go-humanize"
)

type pageData struct {
	Title   string
	Tag     string
	Message string
	Detail  string
	Form    bool
	Minutes int
	Failed  bool
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial, sans-serif; background: #f0f4f8; padding: 20px;">
<div style="max-width: 480px; margin: 0 auto; background: white; padding: 30px; border-radius: 10px;">
<h2 style="color: {{if .Failed}}#d9534f{{else}}#0275d8{{end}}; margin-top: 0;">{{.Title}}</h2>
{{if .Tag}}<p>Endpoint: <code>{{.Tag}}</code></p>{{end}}
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .Detail}}<p style="color: #555;">{{.Detail}}</p>{{end}}
{{if .Form}}<form method="get" action="/mute/items">
<input type="hidden" name="endpoint" value="{{.Tag}}">
<label>Minutes <input type="number" name="minutes" min="1" value="{{.Minutes}}"></label>
<button type="submit">Mute Alerts</button>
</form>{{end}}
</div>
</body>
</html>`))

func renderPage(w http.ResponseWriter, status int, d pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = page.Execute(w, d)
}

func (s *Server) pageError(w http.ResponseWriter, r *http.Request, tag string, err error) {
	code := statusOf(err)
	d := pageData{Title: "Request failed", Tag: tag, Message: err.Error(), Failed: true}
	if errors.Is(err, scheduler.ErrManualMuteDisabled) {
		d.Title = "Manual mute is disabled"
		d.Message = "Enable manual mute in the endpoint configuration to use this action."
	}
	if code >= http.StatusInternalServerError {
		s.fail(w, r, err)
		return
	}
	renderPage(w, code, d)
}

func (s *Server) muteItemsPage(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("endpoint")
	cfg, err := s.ctl.GetEndpoint(r.Context(), tag)
	if err != nil {
		s.pageError(w, r, tag, err)
		return
	}
	if !cfg.EnableManualMute {
		s.pageError(w, r, tag, scheduler.ErrManualMuteDisabled)
		return
	}
	renderPage(w, http.StatusOK, pageData{
		Title:   "Mute Item Alerts",
		Tag:     tag,
		Message: "Choose how long to suppress alerts for the items currently visible.",
		Form:    true,
		Minutes: scheduler.DefaultMuteMinutes,
	})
}

func (s *Server) muteItemsLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tag := q.Get("endpoint")
	minutes, _ := strconv.Atoi(q.Get("minutes"))
	st, err := s.ctl.MuteItems(r.Context(), tag, minutes)
	if err != nil {
		s.pageError(w, r, tag, err)
		return
	}
	d := pageData{
		Title:   "Item Alerts Muted",
		Tag:     tag,
		Message: "Muted " + humanize.Comma(int64(len(st.MutedIDs))) + " current item(s).",
	}
	if st.MuteItemsUntil != nil {
		d.Detail = "Alerts resume " + humanize.Time(*st.MuteItemsUntil) + ", or earlier when a new item appears."
	}
	renderPage(w, http.StatusOK, d)
}

func (s *Server) muteAPILink(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("endpoint")
	if _, err := s.ctl.MuteAPI(r.Context(), tag); err != nil {
		s.pageError(w, r, tag, err)
		return
	}
	renderPage(w, http.StatusOK, pageData{
		Title:   "API Alerts Muted",
		Tag:     tag,
		Message: "Failure alerts stay muted until the API recovers.",
	})
}

func (s *Server) unmuteAPILink(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("endpoint")
	if _, err := s.ctl.UnmuteAPI(r.Context(), tag); err != nil {
		s.pageError(w, r, tag, err)
		return
	}
	renderPage(w, http.StatusOK, pageData{Title: "API Alerts Unmuted", Tag: tag})
}
