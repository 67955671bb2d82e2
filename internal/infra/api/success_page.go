package api

import (
	"html/template"
	"net/http"

	"license-billing/internal/usecase"
)

// handleSuccessPage is the gateway return URL for browsers. It runs the same poller as
// /payments/confirm and renders the result, scheduling the redirect when one is due.
func (s *Server) handleSuccessPage(w http.ResponseWriter, r *http.Request) {
	res, err := s.confirmFromQuery(r)
	if err != nil {
		res = usecase.ConfirmResult{Outcome: usecase.ConfirmMissingOrder, Message: "Missing order information"}
	}
	s.renderHTML(w, res)
}

var page = template.Must(template.New("success").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Payment {{if .OK}}Successful{{else}}Status{{end}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020} .wait{color:#92400e}
.key{font-family:ui-monospace,monospace;font-size:18px;letter-spacing:1px;padding:8px;background:#f4f4f5;border-radius:6px}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  {{if .OK}}
    <h2 class="ok">Payment Successful</h2>
    {{if .LicenseKey}}<p>Your license key:</p><p class="key">{{.LicenseKey}}</p><p>{{.Credits}} credits</p>{{end}}
  {{else if .Pending}}
    <h2 class="wait">Payment Processing</h2>
    <p>We have not received confirmation yet. Your license will appear on the dashboard once the payment clears.</p>
  {{else}}
    <h2 class="fail">Payment Not Completed</h2>
    <p>{{.Msg}}</p>
  {{end}}
  <a class="btn" href="{{.Dashboard}}">Go to dashboard</a>
  {{if .RedirectTo}}
    <div class="small">You will be redirected automatically.</div>
    <script>setTimeout(function(){ window.location.href = {{.RedirectTo}}; }, {{.RedirectMS}});</script>
  {{end}}
</div>
</body>
</html>`))

func (s *Server) renderHTML(w http.ResponseWriter, res usecase.ConfirmResult) {
	data := struct {
		OK         bool
		Pending    bool
		Msg        string
		LicenseKey string
		Credits    int
		Dashboard  string
		RedirectTo string
		RedirectMS int64
	}{
		OK:         res.Outcome == usecase.ConfirmSuccess,
		Pending:    res.Outcome == usecase.ConfirmTimeout,
		Msg:        res.Message,
		Dashboard:  s.opts.DashboardPath,
		RedirectTo: res.RedirectTo,
		RedirectMS: res.RedirectAfter.Milliseconds(),
	}
	if data.RedirectTo != "" {
		data.Dashboard = data.RedirectTo
	}
	if res.License != nil {
		data.LicenseKey = res.License.Key
		data.Credits = res.License.Credits
	}
	code := http.StatusOK
	if res.Outcome == usecase.ConfirmMissingOrder {
		code = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = page.Execute(w, data)
}
