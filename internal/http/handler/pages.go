package handler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
)

var pages = template.Must(template.New("pages").Parse(`
{{define "head"}}<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",sans-serif;background:#f5f6fa;margin:0;display:flex;min-height:100vh;align-items:center;justify-content:center}
main{background:#fff;border-radius:12px;box-shadow:0 4px 24px rgba(0,0,0,.08);padding:32px;max-width:420px;width:100%}
a.button{display:block;text-align:center;padding:12px;margin:12px 0;border-radius:8px;color:#fff;text-decoration:none}
a.github{background:#24292f}a.gitee{background:#c71d23}a.back{background:#4f6ef7}
.detail{color:#b00020;word-break:break-word}
</style>
</head>
<body><main>{{end}}

{{define "foot"}}</main></body></html>{{end}}

{{define "choice"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<p>请选择登录方式</p>
{{range .Providers}}<a class="button {{.ID}}" href="{{.Href}}">使用 {{.Name}} 登录</a>
{{end}}{{template "foot"}}{{end}}

{{define "error"}}{{template "head" .}}
<h1>{{.Title}}</h1>
<p class="detail">{{.Detail}}</p>
<a class="button back" href="/login">返回登录</a>
{{template "foot"}}{{end}}

{{define "index"}}{{template "head" .}}
<h1>{{.Title}}</h1>
{{with .User}}<p>{{if .AvatarURL}}<img src="{{.AvatarURL}}" alt="" width="48" height="48"> {{end}}{{.DisplayName}} ({{.Provider.DisplayName}})</p>{{end}}
<p id="status"></p>
<button id="checkin">签到</button>
<button id="logout">退出登录</button>
<script>
const statusEl = document.getElementById("status");
async function submit(body) {
  const res = await fetch("/api/submit-location", {method: "POST", credentials: "same-origin", headers: {"Content-Type": "application/json"}, body: JSON.stringify(body)});
  const out = await res.json();
  if (out.needConfirm && confirm(out.message)) {
    return submit(Object.assign({}, body, {confirmed: true, confirmData: out.confirmData}));
  }
  statusEl.textContent = out.success ? out.message : (out.message || (out.error && out.error.message) || "签到失败");
}
document.getElementById("checkin").onclick = () => {
  statusEl.textContent = "正在获取位置…";
  navigator.geolocation.getCurrentPosition(
    pos => submit({longitude: pos.coords.longitude, latitude: pos.coords.latitude, type: "checkin"}),
    err => { statusEl.textContent = err.message; });
};
document.getElementById("logout").onclick = async () => {
  await fetch("/api/logout", {method: "POST", credentials: "same-origin"});
  location.href = "/login";
};
</script>
{{template "foot"}}{{end}}
`))

type providerLink struct {
	ID   string
	Name string
	Href string
}

type pageData struct {
	Title     string
	Detail    string
	Providers []providerLink
	User      *domain.User
}

// renderPage buffers the template so a failure can still become a 500.
func renderPage(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("render page failed", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func renderError(w http.ResponseWriter, status int, title, detail string) {
	renderPage(w, status, "error", pageData{Title: title, Detail: detail})
}
