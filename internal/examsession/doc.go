// Package examsession implements the per-attempt exam session controller.
//
// A Controller owns one student's attempt: it loads the exam, acquires the
// permissions the exam policy asks for, runs the whole-exam countdown and the
// optional per-question countdown, classifies integrity signals into an
// append-only incident log, snapshots resumable progress and submits the
// attempt exactly once.
//
// All state is owned by a single loop goroutine (Run). Blocking I/O is handed
// to an Executor and its continuation is applied back on the loop, so nothing
// in this package needs a lock.
package examsession
