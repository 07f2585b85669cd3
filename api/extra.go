package api

import (
	"encoding/json"
	"html/template"
	"net/http"

	"jellybot/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const extraPageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{if .Found}}{{.Title}}{{else}}Not found{{end}}</title>
<script src="https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-chtml.js" async></script>
<style>
body { font-family: sans-serif; max-width: 960px; margin: 2em auto; }
.item { border-bottom: 1px solid #ddd; padding: 1em 0; white-space: pre-wrap; }
.reason { color: #888; font-size: 0.8em; }
</style>
</head>
<body>
{{if .Found}}
<h1>{{.Title}}</h1>
<p class="reason">Expires at {{.Expiry}}</p>
{{range .Items}}
<div class="item">
<div class="reason">{{.Reason}}</div>
{{if .HTML}}{{.HTML}}{{else}}{{.Text}}{{end}}
</div>
{{end}}
{{else}}
<h1>Content not found</h1>
<p>The content does not exist or has expired.</p>
{{end}}
</body>
</html>`

type extraItemView struct {
	Reason string
	Text   string
	HTML   template.HTML
}

type extraPageView struct {
	Found  bool
	Title  string
	Expiry string
	Items  []extraItemView
}

// extraPage 显示溢出内容，LaTeX 项目已在产生时转义过
func (s *Server) extraPage(c *gin.Context) {
	e, err := s.Extra.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		zap.L().Error("Failed to load extra content", zap.String("id", c.Param("id")), zap.Error(err))
		c.HTML(http.StatusInternalServerError, "extra", extraPageView{})
		return
	}
	if e == nil {
		c.HTML(http.StatusNotFound, "extra", extraPageView{})
		return
	}
	c.HTML(http.StatusOK, "extra", extraView(e))
}

func extraView(e *model.ExtraContent) extraPageView {
	v := extraPageView{Found: true, Title: e.Title, Expiry: e.ExpiresAt.Time.UTC().Format("2006-01-02 15:04:05 MST")}
	var items []model.OverflowItem
	if err := json.Unmarshal([]byte(e.Content), &items); err != nil {
		v.Items = []extraItemView{{Text: e.Content}}
		return v
	}
	for _, it := range items {
		iv := extraItemView{Reason: it.Reason.String()}
		if it.Reason == model.OverflowLatexAvailable {
			iv.HTML = template.HTML(it.Content)
		} else {
			iv.Text = it.Content
		}
		v.Items = append(v.Items, iv)
	}
	return v
}
