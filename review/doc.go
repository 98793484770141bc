// Package review schedules spaced-repetition reviews of conversation turns
// and phrases.
//
// ScheduleNextReview is a pure SM-2 style step: it takes an item's ease
// factor and repetition count plus a difficulty rating and returns the next
// review date. Stores persist items, Reviewer runs a review session against
// a Store and Reminder periodically reports how many items are due.
package review
