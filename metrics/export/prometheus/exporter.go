package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics on demand.
type Exporter struct {
	source metricsSource
}

// New returns an exporter reading from engine.
func New(engine *authcore.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource returns an exporter reading from any snapshot source.
func NewFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the exposition on GET.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		bw := bufio.NewWriter(w)
		p.Encode(bw)
		_ = bw.Flush()
	})
}

// Render returns the exposition as a string. It is empty when the engine
// has metrics disabled.
func (p *Exporter) Render() string {
	var b strings.Builder
	p.Encode(&b)
	return b.String()
}

type stringWriter interface {
	io.Writer
	io.StringWriter
}

// Encode writes the exposition to w.
func (p *Exporter) Encode(w stringWriter) {
	if p == nil || p.source == nil {
		return
	}
	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for _, def := range internaldefs.CounterDefs {
		writeHeader(w, def.Name, def.Help, "counter")
		writeSample(w, def.Name, "", snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.Cumulative(raw)
		writeHeader(w, def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			writeSample(w, def.Name+"_bucket", `le="`+le+`"`, cumulative[i])
		}
		writeSample(w, def.Name+"_count", "", cumulative[len(cumulative)-1])
		// Bucket counts only; the engine does not keep a running sum.
		writeSample(w, def.Name+"_sum", "", 0)
	}

	writeHeader(w, internaldefs.AuditDroppedName, "Audit events dropped because the dispatcher queue was full.", "counter")
	writeSample(w, internaldefs.AuditDroppedName, "", dropped)
}

func writeHeader(w io.StringWriter, name, help, kind string) {
	_, _ = w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	_, _ = w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeSample(w io.StringWriter, name, labels string, value uint64) {
	if labels != "" {
		name += "{" + labels + "}"
	}
	_, _ = w.WriteString(name + " " + strconv.FormatUint(value, 10) + "\n")
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
