package coverart

import (
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		artist   string
		album    string
		expected string
	}{
		{name: "Simple", artist: "Anathema", album: "Weather Systems", expected: "anathema_weather_systems"},
		{name: "Case Insensitive", artist: "ANATHEMA", album: "weather SYSTEMS", expected: "anathema_weather_systems"},
		{name: "Whitespace Collapsed", artist: "  Anathema ", album: "Weather \t  Systems", expected: "anathema_weather_systems"},
		{name: "Reserved Characters Escaped", artist: "AC/DC", album: "Back in Black", expected: "ac%2fdc_back_in_black"},
		{name: "Plus Is Escaped Not Spaced", artist: "Blink+182", album: "Enema", expected: "blink%2b182_enema"},
		{name: "Unicode Folded", artist: "Sigur Rós", album: "Ágætis byrjun", expected: "sigur_r%c3%b3s_%c3%a1g%c3%a6tis_byrjun"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.artist, tt.album); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestKey_UnicodeCompositionIsIrrelevant(t *testing.T) {
	composed := Key("Sigur R\u00f3s", "Takk")
	decomposed := Key("Sigur Ro\u0301s", "Takk")
	if composed != decomposed {
		t.Errorf("NFC and NFD spellings should share a key: %q vs %q", composed, decomposed)
	}
}

func TestKey_LongNamesAreBounded(t *testing.T) {
	long := strings.Repeat("Très long titre ", 40)

	a := Key("Artist", long)
	b := Key("Artist", long+"II")

	if len(a) != maxKeyLen {
		t.Errorf("expected key of %d bytes, got %d", maxKeyLen, len(a))
	}
	if a == b {
		t.Error("truncated keys of different albums must differ")
	}
	if strings.ContainsAny(a, "/ ") {
		t.Errorf("key is not a safe file name: %q", a)
	}
}
