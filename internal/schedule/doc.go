// Package schedule runs named jobs on cron or interval schedules.
//
// Schedule strings accept three forms:
//
//   - Cron expressions, 5-field or 6-field with optional seconds, and
//     descriptors such as "@daily" or "@every 1h".
//   - Go durations like "30m" or "2h30m", run on a fixed interval.
//   - HH:MM intervals, where "00:50" means every 50 minutes.
//
// A "cron:", "interval:" or "every:" prefix forces the interpretation.
//
// Jobs never overlap with themselves: a run that fires while the previous
// one is still executing is skipped and logged.
package schedule
