// Package training sequences drills. ConversationFlow walks a scene turn by
// turn: the prompt plays, an answer window opens with a countdown, and the
// turn ends when an answer is recognized or the countdown runs out.
// PhraseFlow runs a self-graded pass over a phrase group and requeues the
// phrases marked incorrect. Finished or abandoned sessions are archived in a
// History.
package training
