package loop

import (
	"html/template"
	"net/http"
	"time"
)

// statusPageTmpl renders the loop's own runtime state for operators:
// uptime, overall status, and, for each registered algorithm instance,
// whether it has events queued (1) or not (0). The number of queued
// events is not shown. It replaces a probe-history/graphing surfacer
// (this core has none) with a minimal debug view.
var statusPageTmpl = template.Must(template.New("status").Parse(`
<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>probeengine loop status</title></head>
<body>
<b>Status</b>: {{.Status}}<br>
<b>Started</b>: {{.StartedAt}} &mdash; up {{.Uptime}}<br>

<h3>Algorithm instances</h3>
<table border="1" cellpadding="4">
<tr><th>ID</th><th>Algorithm</th><th>Has pending events (1/0)</th></tr>
{{range .Instances}}
<tr><td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Pending}}</td></tr>
{{else}}
<tr><td colspan="3">none registered</td></tr>
{{end}}
</table>
</body>
</html>
`))

type statusInstance struct {
	ID      int64
	Name    string
	Pending int
}

type statusPageData struct {
	Status    string
	StartedAt time.Time
	Uptime    time.Duration
	Instances []statusInstance
}

// StatusHandler returns an http.Handler rendering the loop's current
// state — intended for an embedder to mount under a debug path (e.g.
// "/debug/loop"), not served by this package itself.
func (l *Loop) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.Lock()
		data := statusPageData{
			Status:    l.status.String(),
			StartedAt: l.startedAt,
			Uptime:    time.Since(l.startedAt),
		}
		for _, id := range l.order {
			inst := l.instances[id]
			if inst == nil {
				continue
			}
			name := ""
			if inst.Desc != nil {
				name = inst.Desc.Name
			}
			pending := 0
			if inst.Pending() {
				pending = 1
			}
			data.Instances = append(data.Instances, statusInstance{
				ID:      inst.ID,
				Name:    name,
				Pending: pending,
			})
		}
		l.mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := statusPageTmpl.Execute(w, data); err != nil {
			l.log.Warningf("status page render failed: %v", err)
		}
	})
}
