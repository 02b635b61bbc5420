package domain

import "time"

// StatementFilter is a normalized statement window: [Start, End)
type StatementFilter struct {
	Start time.Time
	End   time.Time
}

// ValidateStatementFilter normalizes start to its day and end to the day
// after end (or after today when end is nil), then checks the window.
// Days are calendar days in now's location.
func ValidateStatementFilter(start time.Time, end *time.Time, now time.Time) (StatementFilter, error) {
	loc := now.Location()
	today := StartOfDay(now)
	start = StartOfDay(start.In(loc))

	endDay := today
	if end != nil {
		endDay = StartOfDay(end.In(loc))
	}
	filter := StatementFilter{Start: start, End: endDay.AddDate(0, 0, 1)}

	var errs []ValidationError

	if start.After(today) {
		errs = append(errs, ValidationError{"start date cannot be in the future", "Start", transactionSource})
	}

	if endDay.Before(start) {
		errs = append(errs, ValidationError{"start date cannot be after end date", "Start", transactionSource})
	}

	if filter.End.After(start.AddDate(0, 0, MaxStatementDays)) {
		errs = append(errs, ValidationError{"statement cannot exceed 100 days", "Start", transactionSource})
	}

	if beforeMinOperationalDate(start) {
		errs = append(errs, ValidationError{"start date cannot be before " + MinOperationalDate.Format("2006-01-02"), "Start", transactionSource})
	}

	if len(errs) > 0 {
		return StatementFilter{}, NewDomainError("invalid statement filter", errs...)
	}

	return filter, nil
}
