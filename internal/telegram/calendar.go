package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Calendar callback actions, encoded as "cal:<action>:<year>:<month>:<day>".
const (
	calPrefix     = "cal"
	calActionPrev = "prev"
	calActionNext = "next"
	calActionDay  = "day"
	calActionBack = "back"
	calActionNoop = "noop"
)

var monthNames = []string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

var weekdayRow = []string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// calendarCallback is one decoded calendar button press.
type calendarCallback struct {
	Action string
	Year   int
	Month  time.Month
	Day    int
}

func calData(action string, year int, month time.Month, day int) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", calPrefix, action, year, int(month), day)
}

// parseCalendarCallback decodes calendar callback data; ok is false for
// non-calendar callbacks.
func parseCalendarCallback(data string) (calendarCallback, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 5 || parts[0] != calPrefix {
		return calendarCallback{}, false
	}
	year, err1 := strconv.Atoi(parts[2])
	month, err2 := strconv.Atoi(parts[3])
	day, err3 := strconv.Atoi(parts[4])
	if err1 != nil || err2 != nil || err3 != nil {
		return calendarCallback{}, false
	}
	return calendarCallback{
		Action: parts[1],
		Year:   year,
		Month:  time.Month(month),
		Day:    day,
	}, true
}

// monthKeyboard renders the date-picker grid for one month: a header with
// month navigation, a weekday row, the day grid, and a back row when
// allowBack is set.
func monthKeyboard(year int, month time.Month, allowBack bool) tgbotapi.InlineKeyboardMarkup {
	noop := calData(calActionNoop, year, month, 0)

	header := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("«", calData(calActionPrev, year, month, 0)),
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d", monthNames[month-1], year), noop),
		tgbotapi.NewInlineKeyboardButtonData("»", calData(calActionNext, year, month, 0)),
	)

	var weekdays []tgbotapi.InlineKeyboardButton
	for _, wd := range weekdayRow {
		weekdays = append(weekdays, tgbotapi.NewInlineKeyboardButtonData(wd, noop))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{header, weekdays}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()
	// Monday-first offset of the 1st.
	offset := (int(first.Weekday()) + 6) % 7

	var row []tgbotapi.InlineKeyboardButton
	for i := 0; i < offset; i++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", noop))
	}
	for day := 1; day <= daysInMonth; day++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			strconv.Itoa(day), calData(calActionDay, year, month, day)))
		if len(row) == 7 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", noop))
		}
		rows = append(rows, row)
	}

	if allowBack {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", calData(calActionBack, year, month, 0))))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// shiftMonth steps a (year, month) pair by delta months.
func shiftMonth(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, delta, 0)
	return t.Year(), t.Month()
}
