package ffmpeg

import (
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// progressMonitor turns ffmpeg stats lines into monotonic 0-100 callbacks,
// rate-limited so the GUI is never flooded however chatty the process is.
type progressMonitor struct {
	total   float64
	limiter *rate.Limiter
	last    float64
	emit    func(float64)
}

func newProgressMonitor(totalSeconds float64, emit func(float64)) *progressMonitor {
	return &progressMonitor{
		total:   totalSeconds,
		limiter: rate.NewLimiter(rate.Every(progressInterval), 1),
		emit:    emit,
	}
}

func (m *progressMonitor) observe(line string) {
	if m.emit == nil || m.total <= 0 {
		return
	}

	elapsed, ok := parseTimeSeconds(line)
	if !ok {
		return
	}

	pct := elapsed / m.total * 100
	if pct > 100 {
		pct = 100
	}
	if pct < m.last {
		return
	}
	m.last = pct

	if m.limiter.Allow() {
		m.emit(pct)
	}
}

// finish emits the terminal 100 regardless of the rate limiter.
func (m *progressMonitor) finish() {
	if m.emit != nil {
		m.last = 100
		m.emit(100)
	}
}

// parseTimeSeconds extracts the elapsed encode time from an ffmpeg stats
// line: "... time=00:01:23.45 bitrate=...".
func parseTimeSeconds(line string) (float64, bool) {
	i := strings.Index(line, "time=")
	if i < 0 {
		return 0, false
	}
	field := line[i+len("time="):]
	if j := strings.IndexByte(field, ' '); j >= 0 {
		field = field[:j]
	}
	if field == "" || field == "N/A" {
		return 0, false
	}

	parts := strings.Split(field, ":")
	if len(parts) != 3 {
		return 0, false
	}

	hours, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	total := hours*3600 + minutes*60 + seconds
	if total < 0 {
		return 0, false
	}
	return total, true
}
