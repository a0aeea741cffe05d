package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sweeney/fermenter-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ago": func(t, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Fermenter Controller</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Fermenter Controller</h1>
<p>Mode: <span class="{{if eq .Mode "hardware"}}connected{{else}}warn{{end}}">{{.Mode}}</span></p>

<h2>Vessels</h2>
<table>
<tr><th>Vessel</th><th>Temp</th><th>Setpoint</th><th>Mode</th><th>Cold</th><th>Hot</th><th>Pump</th><th>Log</th></tr>
{{range .Vessels}}<tr>
<td>{{.Name}}</td>
<td{{if .TempFallback}} class="warn" title="probe unreadable, using fallback"{{end}}>{{printf "%.1f" .Temperature}} °C</td>
<td>{{printf "%.2f" .Setpoint}} ± {{printf "%.2f" .Band}}</td>
<td>{{if .Manual}}<span class="warn">manual</span>{{else}}auto{{end}}</td>
<td class="{{if .Cold}}on{{else}}off{{end}}">{{onOff .Cold}}</td>
<td class="{{if .Hot}}on{{else}}off{{end}}">{{onOff .Hot}}</td>
<td class="{{if .Dosing}}on{{else}}off{{end}}">{{onOff .Dosing}} {{printf "%.0f" .PumpFreq}} Hz{{if .ManualPump}} (manual){{end}}</td>
<td>{{.Recording}}</td>
</tr>{{end}}
</table>

{{if .Flows}}<h2>CO2 Flow</h2>
<table>
<tr><th>Meter</th><th>Flow</th><th>Loop</th><th>Status</th><th>Rate</th><th>Last sample</th><th>Log</th></tr>
{{range .Flows}}<tr>
<td>{{.Name}}</td>
<td>{{printf "%.2f" .Flow}} SCCM</td>
<td>{{printf "%.2f" .CurrentMA}} mA</td>
<td class="{{if eq .Status "OK"}}connected{{else}}warn{{end}}">{{.Status}}</td>
<td>{{printf "%.3f" .MassRate}} g/L/h</td>
<td>{{ago .LastSample $.Now}}</td>
<td>{{.Recording}}</td>
</tr>{{end}}
</table>{{end}}

{{if .History}}<h2>History</h2>
<table>
<tr><th>Vessel</th><th>Since</th><th>Rows</th><th>Mean temp</th><th>Mean flow</th></tr>
{{range .History}}<tr>
<td>{{.Channel}}</td>
<td>{{.Since.Format "2006-01-02 15:04"}}</td>
<td>{{.ThermalRows}} / {{.FlowRows}}</td>
<td>{{printf "%.2f" .MeanTemp}}</td>
<td>{{printf "%.2f" .MeanFlow}}{{if .Err}} <span class="warn">{{.Err}}</span>{{end}}</td>
</tr>{{end}}
</table>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Last tick</th><td>{{ago .LastTick .Now}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Run</th><td>{{.Config.RunID}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
