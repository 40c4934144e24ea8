package receipt

import (
	"strconv"
	"time"
)

const (
	storedDateLayout  = "2006-01-02"
	storedTimeLayout  = "15:04:05"
	displayDateLayout = "02 Jan 2006"
	displayTimeLayout = "3:04 PM"
)

// FormatDisplayDate turns a stored YYYY-MM-DD date into the printed
// "DD Mon YYYY" form. The stored value is returned untouched when it does not
// parse, rather than failing a render over a display nicety.
func FormatDisplayDate(date string) string {
	t, err := time.Parse(storedDateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(displayDateLayout)
}

// FormatDisplayTime turns a stored HH:MM:SS time into 12-hour "H:MM AM/PM".
func FormatDisplayTime(tod string) string {
	t, err := time.Parse(storedTimeLayout, tod)
	if err != nil {
		return tod
	}
	return t.Format(displayTimeLayout)
}

// FormatAmount renders the raw numeric amount, no thousands separators and no
// forced decimal places, as it appears on the receipt next to the rupee sign.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// CurrentDateTime returns the capture-time date and time strings in their
// stored canonical forms.
func CurrentDateTime(now time.Time) (date string, tod string) {
	return now.Format(storedDateLayout), now.Format(storedTimeLayout)
}
