package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/assist-arbiter/internal/status"
)

// clock renders a duration as "[Nd ]hh:mm:ss".
func clock(d time.Duration) string {
	secs := int64(d / time.Second)
	days, secs := secs/86400, secs%86400
	hms := fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, hms)
	}
	return hms
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

var indexTmpl = template.Must(template.New("index").
	Funcs(template.FuncMap{"clock": clock, "onOff": onOff}).
	Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width">
<meta http-equiv="refresh" content="2">
<title>Assist Arbiter - {{.Config.Model}}</title>
<style>
body{font:14px/1.4 ui-monospace,monospace;margin:1.5em auto;max-width:40em;padding:0 1em}
section{margin-bottom:1.2em}
dl,table{width:100%;border-collapse:collapse}
th,td{padding:3px 6px;text-align:left;border-bottom:1px dotted #bbb}
th{font-weight:normal;color:#555;width:45%}
.on,.up{color:#080;font-weight:bold}
.off{color:#999}
.down{color:#c00;font-weight:bold}
</style>
</head>
<body>
<h1>Assist Arbiter <small>{{.Config.Model}}</small></h1>

<section><h2>Engagement</h2><table>
<tr><th>Lateral</th><td id="lateral" class="{{if .LateralEnabled}}on{{else}}off{{end}}">{{onOff .LateralEnabled}}</td></tr>
<tr><th>ACC</th><td id="acc" class="{{if .AccEnabled}}on{{else}}off{{end}}">{{onOff .AccEnabled}}</td></tr>
<tr><th>Cruise state</th><td class="{{if .CruiseStateEnabled}}on{{else}}off{{end}}">{{onOff .CruiseStateEnabled}}</td></tr>
<tr><th>Follow distance</th><td>{{.FollowDistance}}</td></tr>
<tr><th>Last events</th><td id="events">{{range $i, $e := .LastEvents}}{{if $i}}, {{end}}{{$e}}{{else}}none{{end}}</td></tr>
<tr><th>Arbitrating</th><td>{{if .Ready}}yes{{else}}waiting for first frame{{end}}</td></tr>
</table></section>

<section><h2>Counters</h2><table>
{{with .Counts}}<tr><th>Cycles</th><td>{{.Cycles}}</td></tr>
<tr><th>Lateral on / off</th><td>{{.LateralEngaged}} / {{.LateralDisengaged}}</td></tr>
<tr><th>Cancels</th><td>{{.Cancels}}</td></tr>
<tr><th>Pedal disengages</th><td>{{.PedalDisengages}}</td></tr>{{end}}
</table></section>

<section><h2>Links</h2><table>
<tr><th>MQTT {{.Config.Broker}}</th><td class="{{if .MQTTConnected}}up{{else}}down{{end}}">{{if .MQTTConnected}}up{{else}}down{{end}}</td></tr>
{{with .Network}}<tr><th>Network ({{.Type}}{{with .SSID}} {{.}}{{end}})</th><td>{{.Status}} {{.IP}}</td></tr>{{end}}
</table></section>

<section><h2>Daemon</h2><table>
{{with .Config}}<tr><th>Input</th><td>{{.Source}}, every {{.PollMs}}ms</td></tr>
<tr><th>Longitudinal</th><td>{{if .StockLong}}stock cruise{{else}}openpilot{{end}}, lateral {{.LateralPolicy}}</td></tr>
<tr><th>Heartbeat</th><td>{{if .HeartbeatMs}}{{.HeartbeatMs}}ms{{else}}off{{end}}</td></tr>{{end}}
<tr><th>Session</th><td>{{.SessionID}}</td></tr>
<tr><th>Up since</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05"}} UTC ({{clock .Uptime}})</td></tr>
</table></section>

<footer><a href="/index.json">status JSON</a></footer>
</body>
</html>
`

// page adds the computed uptime, which the template cannot call.
type page struct {
	status.Snapshot
	Uptime time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, page{Snapshot: snap, Uptime: snap.Uptime()})
}
