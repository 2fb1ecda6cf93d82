package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Bar is one OHLCV row of a dataset.
type Bar struct {
	Time                           time.Time
	Open, High, Low, Close, Volume float64
}

// readBars parses whitespace separated rows of
// "date time open high low close volume". Blank lines and lines starting
// with '#' are skipped.
func readBars(r io.Reader) ([]Bar, error) {
	var bars []Bar
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f := strings.Fields(text)
		if len(f) != 7 {
			return nil, fmt.Errorf("line %d: want 7 fields, got %d", line, len(f))
		}
		t, err := parseTime(f[0] + " " + f[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var v [5]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(f[i+2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		bars = append(bars, Bar{Time: t, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, "2006-01-02 15:04", "2006.01.02 15:04:05", "2006.01.02 15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
