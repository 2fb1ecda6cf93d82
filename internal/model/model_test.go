package model

import (
	"encoding/json"
	"errors"
	"regexp"
	"slices"
	"sync"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestNewIDConcurrentUniqueness(t *testing.T) {
	const n = 64
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Go(func() { ids[i] = NewID() })
	}
	wg.Wait()

	slices.Sort(ids)
	if got := len(slices.Compact(ids)); got != n {
		t.Errorf("got %d distinct ids, want %d", got, n)
	}
}

func TestNewIDSortsByCreation(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		next := NewID()
		if next <= prev {
			t.Fatalf("NewID() = %s, not greater than previous %s", next, prev)
		}
		prev = next
	}
}

func TestParamsArgs(t *testing.T) {
	p := Params{{Name: "atr_mult_sl", Value: 1.094}, {Name: "rr_target", Value: 4}}
	want := []string{"--atr_mult_sl", "1.094", "--rr_target", "4"}
	if got := p.Args(); !slices.Equal(got, want) {
		t.Errorf("Args() = %v, want %v", got, want)
	}
}

func TestResolveParams(t *testing.T) {
	tests := []struct {
		name        string
		values      map[string]float64
		useDefaults bool
		want        Params
		wantErr     bool
	}{
		{
			name:   "all present keeps spec order",
			values: map[string]float64{"rr_target": 3, "atr_mult_sl": 1, "atr_mult_trail": 2},
			want:   Params{{"atr_mult_sl", 1}, {"atr_mult_trail", 2}, {"rr_target", 3}},
		},
		{
			name:    "missing without defaults",
			values:  map[string]float64{"atr_mult_sl": 1},
			wantErr: true,
		},
		{
			name:        "missing with defaults",
			values:      map[string]float64{"atr_mult_sl": 1},
			useDefaults: true,
			want:        Params{{"atr_mult_sl", 1}, {"atr_mult_trail", 4.093}, {"rr_target", 3.990}},
		},
		{
			name:   "unknown names ignored",
			values: map[string]float64{"atr_mult_sl": 1, "atr_mult_trail": 2, "rr_target": 3, "extra": 9},
			want:   Params{{"atr_mult_sl", 1}, {"atr_mult_trail", 2}, {"rr_target", 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveParams(DefaultParamSpecs, tt.values, tt.useDefaults)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedInput) {
					t.Fatalf("err = %v, want ErrMalformedInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveParams: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeValues(t *testing.T) {
	raw := map[string]json.RawMessage{
		"a": json.RawMessage(`1.5`),
		"b": json.RawMessage(`" 2.25 "`),
	}
	got, err := DecodeValues(raw)
	if err != nil {
		t.Fatalf("DecodeValues: %v", err)
	}
	if got["a"] != 1.5 || got["b"] != 2.25 {
		t.Errorf("got %v", got)
	}

	for _, bad := range []string{`"abc"`, `true`, `{}`} {
		_, err := DecodeValues(map[string]json.RawMessage{"x": json.RawMessage(bad)})
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("DecodeValues(%s) err = %v, want ErrMalformedInput", bad, err)
		}
	}
}

func TestResolveParamsRejectsNaN(t *testing.T) {
	values, err := DecodeValues(map[string]json.RawMessage{"atr_mult_sl": json.RawMessage(`"NaN"`)})
	if err != nil {
		t.Fatalf("DecodeValues: %v", err)
	}
	if _, err := ResolveParams(DefaultParamSpecs, values, true); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("err = %v, want ErrMalformedInput", err)
	}
}

func TestValidateSpecs(t *testing.T) {
	if err := ValidateSpecs(DefaultParamSpecs); err != nil {
		t.Errorf("default specs: %v", err)
	}
	if err := ValidateSpecs([]ParamSpec{{Name: "Bad-Name"}}); err == nil {
		t.Error("expected error for invalid name")
	}
	if err := ValidateSpecs([]ParamSpec{{Name: "a"}, {Name: "a"}}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestSummarize(t *testing.T) {
	doc := []byte(`{"final_equity":1100.5,"total_trades":4,"wins":3,"losses":1,"win_rate":75,"avg_pnl":25.125,"trades":[]}`)
	s, err := Summarize("01J", doc)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := Summary{BacktestID: "01J", FinalEquity: 1100.5, TotalTrades: 4, Wins: 3, Losses: 1, WinRate: 75, AvgPnL: 25.125}
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}

	if _, err := Summarize("bad", []byte(`{not json`)); err == nil {
		t.Error("expected error for corrupted document")
	}
	if _, err := Summarize("arr", []byte(`[1,2]`)); err == nil {
		t.Error("expected error for non-object document")
	}
}

func TestTerminalEvents(t *testing.T) {
	b, _ := json.Marshal(StreamFinished("run-1", 0))
	if string(b) != `{"type":"stream-finished","run_id":"run-1","exit_code":0}` {
		t.Errorf("finished = %s", b)
	}
	b, _ = json.Marshal(StreamError("", "boom"))
	if string(b) != `{"type":"stream-error","message":"boom"}` {
		t.Errorf("error = %s", b)
	}
}
