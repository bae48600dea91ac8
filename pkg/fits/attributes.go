package fits

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Filter is the acquisition filter class of a frame.
type Filter int

const (
	FilterL Filter = iota
	FilterR
	FilterG
	FilterB
	FilterOther
)

var filterTable = map[string]Filter{
	"l":         FilterL,
	"lum":       FilterL,
	"luminance": FilterL,
	"r":         FilterR,
	"red":       FilterR,
	"g":         FilterG,
	"green":     FilterG,
	"b":         FilterB,
	"blue":      FilterB,
}

// ParseFilter classifies a FILTER value. Unknown names map to FilterOther.
func ParseFilter(name string) Filter {
	if f, ok := filterTable[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f
	}
	return FilterOther
}

func (f Filter) String() string {
	switch f {
	case FilterL:
		return "L"
	case FilterR:
		return "R"
	case FilterG:
		return "G"
	case FilterB:
		return "B"
	}
	return "Other"
}

// Date is an observation date. HasTime is false for date-only values.
type Date struct {
	Year, Month, Day int
	Hour, Minute     int
	Second           float64
	HasTime          bool
}

func (d Date) IsZero() bool { return d.Year == 0 }

func (d Date) Time() time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	sec := int(d.Second)
	nsec := int((d.Second - float64(sec)) * 1e9)
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, sec, nsec, time.UTC)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	if !d.HasTime {
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%06.3f", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// parseDate understands "YYYY-MM-DD[Thh:mm:ss[.sss]]" and the legacy "DD/MM/YY".
func parseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 8 && s[2] == '/' && s[5] == '/' {
		dd, err1 := strconv.Atoi(s[0:2])
		mm, err2 := strconv.Atoi(s[3:5])
		yy, err3 := strconv.Atoi(s[6:8])
		if err1 != nil || err2 != nil || err3 != nil {
			return Date{}, false
		}
		return Date{Year: 1900 + yy, Month: mm, Day: dd}, validDate(1900+yy, mm, dd)
	}

	datePart, timePart, hasTime := strings.Cut(s, "T")
	fields := strings.Split(datePart, "-")
	if len(fields) != 3 {
		return Date{}, false
	}
	y, err1 := strconv.Atoi(fields[0])
	m, err2 := strconv.Atoi(fields[1])
	d, err3 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil || err3 != nil || !validDate(y, m, d) {
		return Date{}, false
	}
	date := Date{Year: y, Month: m, Day: d}
	if !hasTime {
		return date, true
	}

	tf := strings.Split(timePart, ":")
	if len(tf) != 3 {
		return date, true
	}
	hh, err1 := strconv.Atoi(tf[0])
	mi, err2 := strconv.Atoi(tf[1])
	sec, err3 := strconv.ParseFloat(strings.TrimSuffix(tf[2], "Z"), 64)
	if err1 != nil || err2 != nil || err3 != nil || hh > 23 || mi > 59 || sec >= 61 {
		return date, true
	}
	date.Hour, date.Minute, date.Second, date.HasTime = hh, mi, sec, true
	return date, true
}

func validDate(y, m, d int) bool {
	return y > 0 && m >= 1 && m <= 12 && d >= 1 && d <= 31
}

// Attributes are the acquisition properties read from the header.
type Attributes struct {
	BayerPattern string
	BayerOffsetX int
	BayerOffsetY int
	CFA          CFA

	Filter     string
	FilterType Filter

	Exposure    float64
	FocalLength float64
	Gain        float64
	Aperture    float64

	ObjectRA  string
	ObjectDec string

	Date Date
}

var (
	bayerPatternKeywords = []string{"BAYERPAT", "COLORTYP", "COLORTYPE"}
	bayerOffsetXKeywords = []string{"XBAYROFF", "XBAYOFF", "BAYROFFX", "BAYOFFX"}
	bayerOffsetYKeywords = []string{"YBAYROFF", "YBAYOFF", "BAYROFFY", "BAYOFFY"}

	filterCountKeywords = []string{
		"FILTNUM", "FILTNUMBER", "FILTNR", "FILTN",
		"FILTERNUM", "FILTERNUMBER", "FILTERNR", "FILTERN",
	}
	filterKeywords = []string{
		"FILT0", "FILT-0", "FILTER0", "FILTER-0",
		"FILT1", "FILT-1", "FILTER1", "FILTER-1",
		"FILT2", "FILT-2", "FILTER2", "FILTER-2",
		"FILTER", "FILT",
	}
)

func readAttributes(h *Header) Attributes {
	var a Attributes

	if p, ok := h.FirstString(bayerPatternKeywords...); ok {
		a.BayerPattern = strings.ToLower(p)
	}
	a.CFA, _ = LookupCFA(a.BayerPattern)
	a.BayerOffsetX, _ = h.FirstInt(bayerOffsetXKeywords...)
	a.BayerOffsetY, _ = h.FirstInt(bayerOffsetYKeywords...)

	a.Filter, _ = h.String("FILTER")
	if a.Filter == "" {
		count, ok := h.FirstInt(filterCountKeywords...)
		if !ok {
			count = 1
		}
		if count == 1 {
			a.Filter, _ = h.FirstString(filterKeywords...)
		}
	}
	a.Filter = strings.ToLower(a.Filter)
	a.FilterType = ParseFilter(a.Filter)

	a.Exposure, _ = h.FirstFloat("EXPOSURE", "EXPTIME", "EXP")
	a.FocalLength, _ = h.FirstFloat("FOCALLEN", "FOCALLENGTH")
	a.Gain, _ = h.Float("GAIN")
	a.Aperture, _ = h.Float("APERTURE")
	a.ObjectRA, _ = h.String("OBJCTRA")
	a.ObjectDec, _ = h.String("OBJCTDEC")

	for _, key := range []string{"DATE-OBS", "DATE"} {
		if s, ok := h.String(key); ok {
			if d, ok := parseDate(s); ok {
				a.Date = d
				break
			}
		}
	}
	return a
}
