package polymarket

import (
	"fmt"
	"strings"
	"time"
)

// Los mercados Up/Down se descubren por slug, que se deriva del inicio del periodo:
//
//	15m: btc-updown-15m-1700000100        (unix del inicio, UTC)
//	1h:  bitcoin-up-or-down-november-14-3pm-et  (hora de Nueva York)

// lookbackPeriods es cuántos periodos anteriores se prueban si el actual no existe.
const lookbackPeriods = 3

// hourlyNames traduce el ticker al nombre usado en los slugs 1h. El resto de
// activos usan el ticker tal cual.
var hourlyNames = map[string]string{
	"btc": "bitcoin",
	"eth": "ethereum",
}

var newYork = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// sin tzdata en el sistema; ET aproximado sin horario de verano
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// periodLength devuelve la duración del timeframe ("15m", "1h").
func periodLength(timeframe string) (time.Duration, error) {
	switch strings.ToLower(timeframe) {
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported timeframe %q", timeframe)
}

// periodStart redondea now hacia abajo al inicio de su periodo.
func periodStart(now time.Time, period time.Duration) time.Time {
	secs := int64(period / time.Second)
	return time.Unix(now.Unix()/secs*secs, 0).UTC()
}

// buildSlug construye el slug del periodo que empieza en start.
func buildSlug(asset, timeframe string, start time.Time) (string, error) {
	asset = strings.ToLower(asset)
	switch strings.ToLower(timeframe) {
	case "15m":
		return fmt.Sprintf("%s-updown-15m-%d", asset, start.Unix()), nil
	case "1h":
		name, ok := hourlyNames[asset]
		if !ok {
			name = asset
		}
		et := start.In(newYork)
		h := et.Hour() % 12
		if h == 0 {
			h = 12
		}
		ampm := "am"
		if et.Hour() >= 12 {
			ampm = "pm"
		}
		month := strings.ToLower(et.Month().String())
		return fmt.Sprintf("%s-up-or-down-%s-%d-%d%s-et", name, month, et.Day(), h, ampm), nil
	}
	return "", fmt.Errorf("unsupported timeframe %q", timeframe)
}

// candidateSlugs devuelve el slug del periodo actual seguido de los anteriores.
func candidateSlugs(asset, timeframe string, now time.Time) ([]string, error) {
	period, err := periodLength(timeframe)
	if err != nil {
		return nil, err
	}
	start := periodStart(now, period)
	slugs := make([]string, 0, lookbackPeriods+1)
	for i := 0; i <= lookbackPeriods; i++ {
		s, err := buildSlug(asset, timeframe, start.Add(-time.Duration(i)*period))
		if err != nil {
			return nil, err
		}
		slugs = append(slugs, s)
	}
	return slugs, nil
}
